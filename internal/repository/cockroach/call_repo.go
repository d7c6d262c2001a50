package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"peercall-backend/internal/domain"
)

// Sentinel errors for call lookups and conditional updates
var (
	// ErrCallNotFound indicates no call record with the given ID
	ErrCallNotFound = errors.New("call not found")
	// ErrStatusConflict indicates a conditional transition matched no row:
	// the record is not in any of the expected statuses
	ErrStatusConflict = errors.New("call status conflict")
)

// CallRepository handles call ledger operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

const callColumns = `call_id, caller_id, receiver_id, chat_id, call_type, status,
	       initiated_at, answered_at, ended_at, duration_seconds, end_reason`

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	var endReason *string
	err := row.Scan(
		&call.CallID,
		&call.CallerID,
		&call.ReceiverID,
		&call.ChatID,
		&call.CallType,
		&call.Status,
		&call.InitiatedAt,
		&call.AnsweredAt,
		&call.EndedAt,
		&call.DurationSeconds,
		&endReason,
	)
	if err != nil {
		return nil, err
	}
	if endReason != nil {
		call.EndReason = domain.EndReason(*endReason)
	}
	return call, nil
}

// Create persists a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, caller_id, receiver_id, chat_id, call_type, status, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.ReceiverID,
		call.ChatID,
		call.CallType,
		call.Status,
		call.InitiatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE call_id = $1
	`

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// TransitionMutation describes the target state of a conditional update
type TransitionMutation struct {
	Status     domain.CallStatus
	AnsweredAt *time.Time
	EndedAt    *time.Time
	EndReason  domain.EndReason
}

// Transition atomically moves a call from one of the expected statuses to
// the new status in a single conditional UPDATE, and returns the updated
// record. Two handlers racing on the same record (answer vs ring timeout,
// end vs disconnect) serialize here: the loser gets ErrStatusConflict and
// must not notify anyone.
func (r *CallRepository) Transition(ctx context.Context, callID uuid.UUID, from []domain.CallStatus, mut TransitionMutation) (*domain.Call, error) {
	expected := make([]string, len(from))
	for i, s := range from {
		expected[i] = string(s)
	}

	var endReason *string
	if mut.EndReason != "" {
		s := string(mut.EndReason)
		endReason = &s
	}

	query := `
		UPDATE calls
		SET status = $3,
		    answered_at = COALESCE($4, answered_at),
		    ended_at = COALESCE($5, ended_at),
		    end_reason = COALESCE($6, end_reason),
		    duration_seconds = CASE
		        WHEN $5::TIMESTAMPTZ IS NOT NULL AND COALESCE($4, answered_at) IS NOT NULL
		        THEN GREATEST(0, EXTRACT(EPOCH FROM ($5::TIMESTAMPTZ - COALESCE($4, answered_at)))::INT)
		        ELSE duration_seconds
		    END
		WHERE call_id = $1 AND status = ANY($2)
		RETURNING ` + callColumns

	call, err := scanCall(r.pool.QueryRow(ctx, query, callID, expected, mut.Status, mut.AnsweredAt, mut.EndedAt, endReason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing call from a lost race
			if _, getErr := r.GetByID(ctx, callID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to transition call: %w", err)
	}

	return call, nil
}

// ListByChat retrieves the call history for a chat, newest first, with the
// total count for pagination
func (r *CallRepository) ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Call, int64, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE chat_id = $1
		ORDER BY initiated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate calls: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM calls WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calls: %w", err)
	}

	return calls, total, nil
}

// ListRecentByUser retrieves the most recent calls involving a user across
// all chats
func (r *CallRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY initiated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calls: %w", err)
	}

	return calls, nil
}

// StatsByUser aggregates per-call-type statistics over answered and ended
// calls involving the user
func (r *CallRepository) StatsByUser(ctx context.Context, userID uuid.UUID) ([]domain.CallTypeStats, error) {
	query := `
		SELECT call_type,
		       count(*) AS total_calls,
		       COALESCE(sum(duration_seconds), 0) AS total_duration,
		       COALESCE(avg(duration_seconds), 0) AS avg_duration
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1)
		  AND status IN ('answered', 'ended')
		GROUP BY call_type
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate call stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.CallTypeStats
	for rows.Next() {
		var s domain.CallTypeStats
		if err := rows.Scan(&s.CallType, &s.TotalCalls, &s.TotalDuration, &s.AverageDuration); err != nil {
			return nil, fmt.Errorf("failed to scan call stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call stats: %w", err)
	}

	return stats, nil
}

// FindActiveByUser retrieves all non-terminal calls involving a user.
// Used by the disconnect hook to force-end calls when a party drops.
func (r *CallRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1)
		  AND status IN ('initiated', 'answered')
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calls: %w", err)
	}

	return calls, nil
}
