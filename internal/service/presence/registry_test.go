package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peercall-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	m.Run()
}

type recordingMirror struct {
	mu      sync.Mutex
	online  []uuid.UUID
	offline []uuid.UUID
}

func (m *recordingMirror) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = append(m.online, userID)
	return nil
}

func (m *recordingMirror) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = append(m.offline, userID)
	return nil
}

type statusEvent struct {
	UserID   uuid.UUID
	IsOnline bool
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []statusEvent
}

func (b *recordingBroadcaster) BroadcastStatus(userID uuid.UUID, isOnline bool, lastSeen time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, statusEvent{UserID: userID, IsOnline: isOnline})
}

func (b *recordingBroadcaster) Events() []statusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]statusEvent(nil), b.events...)
}

func TestRegisterMarksUserOnline(t *testing.T) {
	mirror := &recordingMirror{}
	broadcaster := &recordingBroadcaster{}
	r := NewRegistry(mirror)
	r.SetBroadcaster(broadcaster)

	userID := uuid.New()
	connID := uuid.New()

	assert.False(t, r.IsOnline(userID))
	r.Register(userID, connID, nil)

	assert.True(t, r.IsOnline(userID))
	got, ok := r.ConnectionOf(userID)
	require.True(t, ok)
	assert.Equal(t, connID, got)
	assert.Equal(t, []uuid.UUID{userID}, mirror.online)
	require.Len(t, broadcaster.Events(), 1)
	assert.True(t, broadcaster.Events()[0].IsOnline)
}

func TestRegisterEvictsSupersededConnection(t *testing.T) {
	r := NewRegistry(nil)
	userID := uuid.New()

	evicted := false
	r.Register(userID, uuid.New(), func() { evicted = true })

	newConn := uuid.New()
	r.Register(userID, newConn, nil)

	assert.True(t, evicted, "old connection must be evicted")
	got, ok := r.ConnectionOf(userID)
	require.True(t, ok)
	assert.Equal(t, newConn, got)
}

func TestUnregisterStaleConnectionIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	userID := uuid.New()
	oldConn := uuid.New()
	newConn := uuid.New()

	r.Register(userID, oldConn, nil)
	r.Register(userID, newConn, nil)

	// The old connection's disconnect arrives after the reconnect and
	// must not take the user offline
	assert.False(t, r.Unregister(userID, oldConn))
	assert.True(t, r.IsOnline(userID))

	assert.True(t, r.Unregister(userID, newConn))
	assert.False(t, r.IsOnline(userID))
}

func TestUnregisterKeepsLastSeen(t *testing.T) {
	r := NewRegistry(nil)
	userID := uuid.New()
	connID := uuid.New()

	r.Register(userID, connID, nil)
	r.Unregister(userID, connID)

	entry, ok := r.Entry(userID)
	require.True(t, ok)
	assert.False(t, entry.IsOnline)
	assert.WithinDuration(t, time.Now().UTC(), entry.LastSeen, time.Second)
}

func TestOnlineUsersSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	r.Register(a, uuid.New(), nil)
	connB := uuid.New()
	r.Register(b, connB, nil)
	r.Register(c, uuid.New(), nil)
	r.Unregister(b, connB)

	online := r.OnlineUsers()
	assert.Len(t, online, 2)
	assert.Contains(t, online, a)
	assert.Contains(t, online, c)
	assert.NotContains(t, online, b)
}

func TestTouchRefreshesOnlyAuthoritativeConnection(t *testing.T) {
	r := NewRegistry(nil)
	userID := uuid.New()
	connID := uuid.New()

	r.Register(userID, connID, nil)
	before, ok := r.Entry(userID)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	r.Touch(userID, uuid.New())
	unchanged, _ := r.Entry(userID)
	assert.Equal(t, before.LastSeen, unchanged.LastSeen, "stale connection must not refresh")

	r.Touch(userID, connID)
	refreshed, _ := r.Entry(userID)
	assert.True(t, refreshed.LastSeen.After(before.LastSeen))
}

func TestSweepForcesOrphanedEntriesOffline(t *testing.T) {
	mirror := &recordingMirror{}
	broadcaster := &recordingBroadcaster{}
	r := NewRegistry(mirror)
	r.SetBroadcaster(broadcaster)

	alive := uuid.New()
	orphan := uuid.New()
	aliveConn := uuid.New()
	orphanConn := uuid.New()
	r.Register(alive, aliveConn, nil)
	r.Register(orphan, orphanConn, nil)

	n := r.Sweep(func(connID uuid.UUID) bool { return connID == aliveConn })

	assert.Equal(t, 1, n)
	assert.True(t, r.IsOnline(alive))
	assert.False(t, r.IsOnline(orphan))

	events := broadcaster.Events()
	require.Len(t, events, 3)
	last := events[len(events)-1]
	assert.Equal(t, orphan, last.UserID)
	assert.False(t, last.IsOnline)
	assert.Contains(t, mirror.offline, orphan)
}

func TestSweepWithoutOrphansChangesNothing(t *testing.T) {
	r := NewRegistry(nil)
	userID := uuid.New()
	r.Register(userID, uuid.New(), nil)

	n := r.Sweep(func(uuid.UUID) bool { return true })

	assert.Zero(t, n)
	assert.True(t, r.IsOnline(userID))
}
