package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile is the identity attached to call notifications
// (caller, answeredBy, declinedBy, endedBy payloads)
type UserProfile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
}

// PresenceEntry tracks a user's live signaling connection.
// At most one connection is authoritative per user; a newer
// connection evicts an older one.
type PresenceEntry struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	IsOnline     bool      `json:"is_online"`
	LastSeen     time.Time `json:"last_seen"`
}
