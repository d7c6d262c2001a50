package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	"peercall-backend/pkg/constants"
	apperrors "peercall-backend/pkg/errors"
	"peercall-backend/pkg/logger"
	"peercall-backend/pkg/metrics"
)

// Client is one authenticated signaling connection
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
	connID  uuid.UUID
	profile domain.UserProfile

	closeOnce sync.Once
	release   func()
}

// evict closes the underlying connection. The presence registry calls
// it when the same user opens a newer connection.
func (c *Client) evict() {
	logger.Info("Evicting superseded connection",
		zap.String("user_id", c.userID.String()),
		zap.String("conn_id", c.connID.String()))
	c.closeOnce.Do(func() { c.conn.Close() })
}

// readPump reads frames off the socket and dispatches them until the
// connection drops
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.closeOnce.Do(func() { c.conn.Close() })
		c.release()
	}()

	c.conn.SetReadLimit(constants.MaxSignalingMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Signaling connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			metrics.SignalingRejectedTotal.WithLabelValues("malformed").Inc()
			c.sendError("Invalid message format")
			continue
		}

		c.dispatch(&envelope)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.closeOnce.Do(func() { c.conn.Close() })
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes an inbound envelope by kind. The kind set is closed;
// anything outside it is rejected.
func (c *Client) dispatch(envelope *Envelope) {
	metrics.SignalingMessagesTotal.WithLabelValues(string(envelope.Type), "in").Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch envelope.Type {
	case KindInitiateCall:
		var p InitiateCallPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if _, err := c.hub.calls.Initiate(ctx, c.userID, p.ReceiverID, p.ChatID, p.CallType); err != nil {
			c.sendCallError(err, "Failed to initiate call")
		}

	case KindAnswerCall:
		var p AnswerCallPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if _, err := c.hub.calls.Answer(ctx, p.CallID, c.userID); err != nil {
			c.sendCallError(err, "Failed to answer call")
		}

	case KindDeclineCall:
		var p DeclineCallPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if _, err := c.hub.calls.Decline(ctx, p.CallID, c.userID); err != nil {
			c.sendCallError(err, "Failed to decline call")
		}

	case KindEndCall:
		var p EndCallPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if _, err := c.hub.calls.End(ctx, p.CallID, c.userID, p.EndReason); err != nil {
			c.sendCallError(err, "Failed to end call")
		}

	case KindWebRTCOffer:
		var p SignalPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if err := c.hub.relay.ForwardOffer(ctx, c.userID, &p); err != nil {
			c.sendCallError(err, "Failed to send offer")
		}

	case KindWebRTCAnswer:
		var p SignalPayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		if err := c.hub.relay.ForwardAnswer(ctx, c.userID, &p); err != nil {
			c.sendCallError(err, "Failed to send answer")
		}

	case KindICECandidate:
		var p ICECandidatePayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		// Candidate forwarding is best-effort; failures stay silent
		c.hub.relay.ForwardICECandidate(ctx, c.userID, &p)

	case KindGetOnlineUsers:
		c.hub.Push(c.userID, KindOnlineUsers, OnlineUsersPayload{
			UserIDs: c.hub.registry.OnlineUsers(),
		})

	case KindUserStatusChange:
		// Presence is connection-derived; the explicit flag only
		// refreshes last-seen on the authoritative entry
		var p UserStatusChangePayload
		if !c.decode(envelope.Payload, &p) {
			return
		}
		c.hub.registry.Touch(c.userID, c.connID)

	default:
		metrics.SignalingRejectedTotal.WithLabelValues(string(envelope.Type)).Inc()
		logger.Warn("Unknown signaling message kind",
			zap.String("user_id", c.userID.String()),
			zap.String("kind", string(envelope.Type)))
		c.sendError("Unknown message type")
	}
}

func (c *Client) decode(raw json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		metrics.SignalingRejectedTotal.WithLabelValues("malformed").Inc()
		c.sendError("Invalid message format")
		return false
	}
	return true
}

// sendCallError maps a service error to the call_error frame the sender
// sees. Application errors keep their message; anything else gets the
// generic fallback.
func (c *Client) sendCallError(err error, fallback string) {
	message := fallback
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeDatabase && appErr.Code != apperrors.ErrCodeInternal {
		message = appErr.Message
	}
	c.sendError(message)
}

func (c *Client) sendError(message string) {
	c.hub.Push(c.userID, KindCallError, CallErrorPayload{Message: message})
}
