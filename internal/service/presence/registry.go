package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	"peercall-backend/pkg/logger"
	"peercall-backend/pkg/metrics"
)

// Mirror reflects presence transitions into an external store (Redis).
// Mirror failures are logged, never propagated: the in-memory registry
// stays authoritative for connection routing.
type Mirror interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// Broadcaster pushes a status transition to every other live connection
type Broadcaster interface {
	BroadcastStatus(userID uuid.UUID, isOnline bool, lastSeen time.Time)
}

type entry struct {
	connID   uuid.UUID
	lastSeen time.Time
	online   bool
	evict    func()
}

// Registry is the authoritative in-memory presence registry: one live
// connection per user, newer connections evict older ones. All state is
// process-lifetime; only lastSeen transitions are mirrored out.
type Registry struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]*entry
	mirror      Mirror
	broadcaster Broadcaster
}

// NewRegistry creates a presence registry. mirror may be nil in tests.
func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		mirror:  mirror,
	}
}

// SetBroadcaster attaches the broadcaster after construction. The hub
// needs the registry to route messages and the registry needs the hub to
// broadcast, so one side is wired late.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcaster = b
}

// Register marks a user online on the given connection, evicting any
// prior connection for that user. evict is invoked outside the lock to
// close the superseded connection.
func (r *Registry) Register(userID, connID uuid.UUID, evict func()) {
	now := time.Now().UTC()

	r.mu.Lock()
	prev := r.entries[userID]
	r.entries[userID] = &entry{connID: connID, lastSeen: now, online: true, evict: evict}
	count := r.onlineCountLocked()
	b := r.broadcaster
	r.mu.Unlock()

	if prev != nil && prev.evict != nil {
		logger.Info("Evicting superseded connection",
			zap.String("user_id", userID.String()),
			zap.String("old_connection_id", prev.connID.String()))
		prev.evict()
	}

	metrics.PresenceOnlineUsers.Set(float64(count))
	r.mirrorOnline(userID, true)
	if b != nil {
		b.BroadcastStatus(userID, true, now)
	}
}

// Unregister marks the user offline only if connID is still the
// authoritative connection. A stale disconnect racing a reconnect is a
// no-op. Returns true when the user actually went offline.
func (r *Registry) Unregister(userID, connID uuid.UUID) bool {
	now := time.Now().UTC()

	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok || e.connID != connID {
		r.mu.Unlock()
		return false
	}
	e.online = false
	e.lastSeen = now
	e.evict = nil
	count := r.onlineCountLocked()
	b := r.broadcaster
	r.mu.Unlock()

	metrics.PresenceOnlineUsers.Set(float64(count))
	r.mirrorOnline(userID, false)
	if b != nil {
		b.BroadcastStatus(userID, false, now)
	}
	return true
}

// IsOnline reports whether the user has a live connection
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	return ok && e.online
}

// Touch refreshes the last-seen timestamp for the authoritative
// connection. A stale connID is ignored.
func (r *Registry) Touch(userID, connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok || !e.online || e.connID != connID {
		return
	}
	e.lastSeen = time.Now().UTC()
}

// ConnectionOf returns the user's authoritative connection ID
func (r *Registry) ConnectionOf(userID uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok || !e.online {
		return uuid.Nil, false
	}
	return e.connID, true
}

// OnlineUsers returns a snapshot of currently online user IDs
func (r *Registry) OnlineUsers() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]uuid.UUID, 0, len(r.entries))
	for userID, e := range r.entries {
		if e.online {
			users = append(users, userID)
		}
	}
	return users
}

// Entry returns the presence entry for a user
func (r *Registry) Entry(userID uuid.UUID) (domain.PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return domain.PresenceEntry{}, false
	}
	return domain.PresenceEntry{
		UserID:       userID,
		ConnectionID: e.connID,
		IsOnline:     e.online,
		LastSeen:     e.lastSeen,
	}, true
}

// Sweep compares online entries against actually-live connections and
// force-marks orphaned ones offline, broadcasting corrections. This
// compensates for browser/tab termination that never delivered a close
// frame.
func (r *Registry) Sweep(alive func(connID uuid.UUID) bool) int {
	now := time.Now().UTC()

	r.mu.Lock()
	var orphaned []uuid.UUID
	for userID, e := range r.entries {
		if e.online && !alive(e.connID) {
			e.online = false
			e.lastSeen = now
			e.evict = nil
			orphaned = append(orphaned, userID)
		}
	}
	count := r.onlineCountLocked()
	b := r.broadcaster
	r.mu.Unlock()

	for _, userID := range orphaned {
		logger.Warn("Presence sweep found orphaned entry, marking offline",
			zap.String("user_id", userID.String()))
		metrics.PresenceSweepEvictionsTotal.Inc()
		r.mirrorOnline(userID, false)
		if b != nil {
			b.BroadcastStatus(userID, false, now)
		}
	}

	metrics.PresenceOnlineUsers.Set(float64(count))
	return len(orphaned)
}

// StartSweeper runs Sweep on the given interval until ctx is done
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration, alive func(connID uuid.UUID) bool) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(alive); n > 0 {
					logger.Info("Presence sweep complete", zap.Int("orphaned", n))
				}
			}
		}
	}()
}

func (r *Registry) onlineCountLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.online {
			n++
		}
	}
	return n
}

func (r *Registry) mirrorOnline(userID uuid.UUID, online bool) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if online {
		err = r.mirror.SetUserOnline(ctx, userID)
	} else {
		err = r.mirror.SetUserOffline(ctx, userID)
	}
	if err != nil {
		logger.Warn("Failed to mirror presence transition",
			zap.String("user_id", userID.String()),
			zap.Bool("online", online),
			zap.Error(err))
	}
}
