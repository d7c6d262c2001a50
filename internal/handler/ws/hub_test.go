package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peercall-backend/internal/domain"
	"peercall-backend/internal/service/presence"
	"peercall-backend/pkg/jwt"
)

// stubCallService satisfies CallService; HandleDisconnect can be made
// to block until released
type stubCallService struct {
	disconnectStarted chan uuid.UUID
	disconnectRelease chan struct{}
}

func newStubCallService() *stubCallService {
	return &stubCallService{
		disconnectStarted: make(chan uuid.UUID, 4),
		disconnectRelease: make(chan struct{}),
	}
}

func (s *stubCallService) Initiate(ctx context.Context, callerID, receiverID, chatID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	return nil, nil
}

func (s *stubCallService) Answer(ctx context.Context, callID, answererID uuid.UUID) (*domain.Call, error) {
	return nil, nil
}

func (s *stubCallService) Decline(ctx context.Context, callID, declinerID uuid.UUID) (*domain.Call, error) {
	return nil, nil
}

func (s *stubCallService) End(ctx context.Context, callID, enderID uuid.UUID, reason domain.EndReason) (*domain.Call, error) {
	return nil, nil
}

func (s *stubCallService) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	s.disconnectStarted <- userID
	select {
	case <-s.disconnectRelease:
	case <-time.After(5 * time.Second):
	}
}

func serveTestHub(t *testing.T) (*Hub, *jwt.JWTManager, *presence.Registry, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := presence.NewRegistry(nil)
	manager := jwt.NewJWTManager("test-secret-at-least-32-characters!!", time.Hour)
	hub := NewHub(registry, manager, 16)
	hub.SetCallService(newStubCallService())

	router := gin.New()
	router.GET("/v1/ws", hub.ServeWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	return hub, manager, registry, wsURL
}

func dialWS(t *testing.T, wsURL, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{"Origin": []string{"http://localhost:3000"}}
	if token != "" {
		wsURL += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func TestServeWSAuthenticatedConnectGoesOnline(t *testing.T) {
	_, manager, registry, wsURL := serveTestHub(t)
	userID := uuid.New()
	token, err := manager.GenerateToken(userID, "alice", "")
	require.NoError(t, err)

	conn, _, err := dialWS(t, wsURL, token)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return registry.IsOnline(userID) },
		2*time.Second, 5*time.Millisecond, "user should be online after connect")

	conn.Close()
	require.Eventually(t, func() bool { return !registry.IsOnline(userID) },
		2*time.Second, 5*time.Millisecond, "user should go offline after close")
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	_, _, _, wsURL := serveTestHub(t)

	_, resp, err := dialWS(t, wsURL, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWSRejectsNilSubjectToken(t *testing.T) {
	_, manager, registry, wsURL := serveTestHub(t)
	token, err := manager.GenerateToken(uuid.Nil, "nobody", "")
	require.NoError(t, err)

	_, resp, err := dialWS(t, wsURL, token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, registry.IsOnline(uuid.Nil))
}

func TestServeWSRejectsGarbageToken(t *testing.T) {
	_, _, _, wsURL := serveTestHub(t)

	_, resp, err := dialWS(t, wsURL, "not-a-jwt")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSlowDisconnectHookDoesNotStallHubLoop(t *testing.T) {
	registry := presence.NewRegistry(nil)
	manager := jwt.NewJWTManager("test-secret-at-least-32-characters!!", time.Hour)
	hub := NewHub(registry, manager, 16)
	stub := newStubCallService()
	hub.SetCallService(stub)

	first := &Client{
		hub:     hub,
		send:    make(chan []byte, 8),
		userID:  uuid.New(),
		connID:  uuid.New(),
		release: func() {},
	}
	hub.register <- first
	require.Eventually(t, func() bool { return registry.IsOnline(first.userID) },
		2*time.Second, 5*time.Millisecond)

	// Disconnect; the hook blocks until released
	hub.unregister <- first
	select {
	case <-stub.disconnectStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook never started")
	}

	// The hub loop must keep registering connections while the force-end
	// of the first user's calls is still in flight
	second := &Client{
		hub:     hub,
		send:    make(chan []byte, 8),
		userID:  uuid.New(),
		connID:  uuid.New(),
		release: func() {},
	}
	hub.register <- second
	require.Eventually(t, func() bool { return registry.IsOnline(second.userID) },
		2*time.Second, 5*time.Millisecond, "registration stalled behind disconnect hook")

	close(stub.disconnectRelease)
}
