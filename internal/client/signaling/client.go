package signaling

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peercall-backend/internal/client/rtc"
	"peercall-backend/internal/domain"
	"peercall-backend/internal/handler/ws"
	"peercall-backend/pkg/constants"
	"peercall-backend/pkg/logger"
)

// EnvelopeHandler receives every decoded server-to-client message
type EnvelopeHandler func(env *ws.Envelope)

// Client is the signaling wire client: one authenticated WebSocket
// connection speaking the closed message set.
type Client struct {
	conn    *websocket.Conn
	handler EnvelopeHandler

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// Dial connects and authenticates to the signaling endpoint. serverURL
// is the ws:// or wss:// base, e.g. "ws://localhost:8080/v1/ws".
func Dial(ctx context.Context, serverURL, token string, handler EnvelopeHandler) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		handler: handler,
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(constants.MaxSignalingMessageSize)
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(constants.WebSocketWriteTimeout))
	})

	go c.readLoop()

	return c, nil
}

// Done closes when the connection drops
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer func() {
		c.Close()
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Signaling connection lost", zap.Error(err))
			}
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("Malformed signaling message from server", zap.Error(err))
			continue
		}

		if c.handler != nil {
			c.handler(&env)
		}
	}
}

func (c *Client) write(kind ws.MessageKind, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ws.Envelope{Type: kind, Payload: raw})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Initiate places a call
func (c *Client) Initiate(receiverID, chatID uuid.UUID, callType domain.CallType) error {
	return c.write(ws.KindInitiateCall, ws.InitiateCallPayload{
		ReceiverID: receiverID,
		ChatID:     chatID,
		CallType:   callType,
	})
}

// Answer accepts an incoming call
func (c *Client) Answer(callID uuid.UUID) error {
	return c.write(ws.KindAnswerCall, ws.AnswerCallPayload{CallID: callID})
}

// Decline rejects an incoming call
func (c *Client) Decline(callID uuid.UUID) error {
	return c.write(ws.KindDeclineCall, ws.DeclineCallPayload{CallID: callID})
}

// End hangs up
func (c *Client) End(callID uuid.UUID, reason domain.EndReason) error {
	return c.write(ws.KindEndCall, ws.EndCallPayload{CallID: callID, EndReason: reason})
}

// RequestOnlineUsers asks for the current presence snapshot
func (c *Client) RequestOnlineUsers() error {
	return c.write(ws.KindGetOnlineUsers, struct{}{})
}

// SendOffer relays a local SDP offer toward the peer
func (c *Client) SendOffer(callID, targetUserID uuid.UUID, sdp rtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.write(ws.KindWebRTCOffer, ws.SignalPayload{
		CallID:       callID,
		TargetUserID: targetUserID,
		Offer:        raw,
	})
}

// SendAnswer relays a local SDP answer toward the peer
func (c *Client) SendAnswer(callID, targetUserID uuid.UUID, sdp rtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.write(ws.KindWebRTCAnswer, ws.SignalPayload{
		CallID:       callID,
		TargetUserID: targetUserID,
		Answer:       raw,
	})
}

// SendICECandidate relays a local candidate toward the peer
func (c *Client) SendICECandidate(callID, targetUserID uuid.UUID, candidate rtc.ICECandidate) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.write(ws.KindICECandidate, ws.ICECandidatePayload{
		CallID:       callID,
		TargetUserID: targetUserID,
		Candidate:    raw,
	})
}
