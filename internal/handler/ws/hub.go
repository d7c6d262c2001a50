package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	"peercall-backend/internal/service/presence"
	"peercall-backend/pkg/constants"
	"peercall-backend/pkg/jwt"
	"peercall-backend/pkg/logger"
	"peercall-backend/pkg/metrics"
)

// CallService is the subset of the call session manager the socket
// layer drives
type CallService interface {
	Initiate(ctx context.Context, callerID, receiverID, chatID uuid.UUID, callType domain.CallType) (*domain.Call, error)
	Answer(ctx context.Context, callID, answererID uuid.UUID) (*domain.Call, error)
	Decline(ctx context.Context, callID, declinerID uuid.UUID) (*domain.Call, error)
	End(ctx context.Context, callID, enderID uuid.UUID, reason domain.EndReason) (*domain.Call, error)
	HandleDisconnect(ctx context.Context, userID uuid.UUID)
}

// Hub manages signaling connections keyed by user. Each user has at
// most one live connection; a new connection evicts the previous one.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	registry *presence.Registry
	calls    CallService
	relay    *Relay

	jwtManager *jwt.JWTManager

	maxConnections int
	semaphore      chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		allowed := GetAllowedOrigins()
		return allowed[origin]
	},
}

// NewHub creates the signaling hub. The call service is wired after
// construction because it notifies through the hub.
func NewHub(registry *presence.Registry, jwtManager *jwt.JWTManager, maxConnections int) *Hub {
	hub := &Hub{
		clients:        make(map[uuid.UUID]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		registry:       registry,
		jwtManager:     jwtManager,
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}

	go hub.run()

	return hub
}

// SetCallService wires the session manager
func (h *Hub) SetCallService(calls CallService) {
	h.calls = calls
}

// SetRelay wires the WebRTC signal relay
func (h *Hub) SetRelay(relay *Relay) {
	h.relay = relay
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			count := len(h.clients)
			h.mu.Unlock()

			metrics.WebSocketConnections.Set(float64(count))

			// Presence registration evicts any prior connection for
			// this user and mirrors/broadcasts the status flip
			h.registry.Register(client.userID, client.connID, client.evict)

			logger.Info("Signaling connection established",
				zap.String("user_id", client.userID.String()),
				zap.String("conn_id", client.connID.String()))

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.userID]
			if ok && current.connID == client.connID {
				delete(h.clients, client.userID)
			}
			count := len(h.clients)
			h.mu.Unlock()

			close(client.send)
			metrics.WebSocketConnections.Set(float64(count))

			// A stale connID means the user already reconnected;
			// only the authoritative connection flips presence and
			// tears down active calls. The ledger writes run off the
			// hub loop so a slow force-end cannot stall registration.
			if h.registry.Unregister(client.userID, client.connID) {
				userID := client.userID
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					h.calls.HandleDisconnect(ctx, userID)
				}()
			}

			logger.Info("Signaling connection closed",
				zap.String("user_id", client.userID.String()),
				zap.String("conn_id", client.connID.String()))
		}
	}
}

// Push sends an encoded message to a user's live connection. Offline
// users are silently skipped.
func (h *Hub) Push(userID uuid.UUID, kind MessageKind, payload interface{}) bool {
	data := encode(kind, payload)
	if data == nil {
		return false
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		metrics.SignalingDroppedTotal.WithLabelValues(string(kind), "offline").Inc()
		return false
	}

	select {
	case client.send <- data:
		metrics.SignalingMessagesTotal.WithLabelValues(string(kind), "out").Inc()
		return true
	default:
		// Slow consumer: drop the connection rather than block the hub
		metrics.SignalingDroppedTotal.WithLabelValues(string(kind), "backpressure").Inc()
		client.closeOnce.Do(func() { client.conn.Close() })
		return false
	}
}

// IsConnLive reports whether connID still belongs to a registered
// client. The presence sweeper uses it to detect orphaned entries.
func (h *Hub) IsConnLive(connID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.connID == connID {
			return true
		}
	}
	return false
}

// Profile resolves a connected user's identity from the claims captured
// at connect time. Offline users resolve to a bare ID.
func (h *Hub) Profile(userID uuid.UUID) domain.UserProfile {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[userID]; ok {
		return client.profile
	}
	return domain.UserProfile{ID: userID}
}

// Notifier implementation: the call session manager pushes its typed
// events through these.

func (h *Hub) NotifyIncomingCall(userID uuid.UUID, call *domain.Call, caller domain.UserProfile) {
	h.Push(userID, KindIncomingCall, IncomingCallPayload{
		CallID:   call.CallID,
		Caller:   caller,
		ChatID:   call.ChatID,
		CallType: call.CallType,
	})
}

func (h *Hub) NotifyCallInitiated(userID uuid.UUID, call *domain.Call) {
	h.Push(userID, KindCallInitiated, CallInitiatedPayload{
		CallID:     call.CallID,
		ReceiverID: call.ReceiverID,
		CallType:   call.CallType,
	})
}

func (h *Hub) NotifyCallAnswered(userID uuid.UUID, callID uuid.UUID, answeredBy domain.UserProfile) {
	h.Push(userID, KindCallAnswered, CallAnsweredPayload{CallID: callID, AnsweredBy: answeredBy})
}

func (h *Hub) NotifyCallDeclined(userID uuid.UUID, callID uuid.UUID, declinedBy domain.UserProfile) {
	h.Push(userID, KindCallDeclined, CallDeclinedPayload{CallID: callID, DeclinedBy: declinedBy})
}

func (h *Hub) NotifyCallEnded(userID uuid.UUID, callID uuid.UUID, endedBy *domain.UserProfile, reason domain.EndReason) {
	h.Push(userID, KindCallEnded, CallEndedPayload{CallID: callID, EndedBy: endedBy, EndReason: reason})
}

// BroadcastStatus fans a presence flip out to every connected user
// except the one whose status changed
func (h *Hub) BroadcastStatus(userID uuid.UUID, isOnline bool, lastSeen time.Time) {
	payload := UserStatusUpdatedPayload{UserID: userID, IsOnline: isOnline, LastSeen: lastSeen}

	h.mu.RLock()
	targets := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		if id != userID {
			targets = append(targets, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range targets {
		h.Push(id, KindUserStatusUpdated, payload)
	}
}

// ServeWS authenticates and upgrades a signaling connection. The JWT
// arrives as a query parameter because browser WebSocket clients cannot
// set headers.
func (h *Hub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("Signaling connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}
	acquired := true
	defer func() {
		if acquired {
			<-h.semaphore
		}
	}()

	token := c.Query("token")
	if token == "" {
		// Non-browser clients may send a Bearer header instead
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		metrics.WebSocketConnectionUnauthorizedTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		metrics.WebSocketConnectionUnauthorizedTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	userID := claims.UserID
	if userID == uuid.Nil {
		metrics.WebSocketConnectionUnauthorizedTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, constants.WebSocketSendBuffer),
		userID: userID,
		connID: uuid.New(),
		profile: domain.UserProfile{
			ID:       userID,
			Username: claims.Username,
			Avatar:   claims.Avatar,
		},
		release: func() { <-h.semaphore },
	}
	acquired = false // the client now owns the slot

	h.register <- client

	go client.writePump()
	go client.readPump()
}
