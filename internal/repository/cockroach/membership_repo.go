package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepository checks chat membership for call admission.
// Chat CRUD itself lives in the chat service; this repository only reads
// the membership table.
type MembershipRepository struct {
	pool *pgxpool.Pool
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(pool *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

// IsMember reports whether userID belongs to chatID
func (r *MembershipRepository) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, chatID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check chat membership: %w", err)
	}
	return exists, nil
}

// AreMembers reports whether both users belong to chatID
func (r *MembershipRepository) AreMembers(ctx context.Context, chatID, first, second uuid.UUID) (bool, error) {
	query := `
		SELECT count(*) FROM chat_members
		WHERE chat_id = $1 AND user_id = ANY($2)
	`

	var count int
	ids := []uuid.UUID{first, second}
	if err := r.pool.QueryRow(ctx, query, chatID, ids).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check chat membership: %w", err)
	}
	return count == 2, nil
}
