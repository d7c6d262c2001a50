package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	apperrors "peercall-backend/pkg/errors"
	"peercall-backend/pkg/logger"
)

// SignalSender carries locally produced SDP and ICE toward the peer
type SignalSender interface {
	SendOffer(callID, targetUserID uuid.UUID, sdp SessionDescription) error
	SendAnswer(callID, targetUserID uuid.UUID, sdp SessionDescription) error
	SendICECandidate(callID, targetUserID uuid.UUID, candidate ICECandidate) error
}

// Controller drives one peer connection for one call. It is created
// per call and never reused; a second offer on the same controller is
// rejected.
type Controller struct {
	callID   uuid.UUID
	peerID   uuid.UUID
	callType domain.CallType

	devices MediaDevices
	factory TransportFactory
	sender  SignalSender

	mu         sync.Mutex
	media      MediaHandle
	transport  PeerTransport
	offerSent  bool
	offerTaken bool
	closed     bool
	terminated bool

	onRemoteTrack func(kind string)
	onTerminated  func(reason domain.EndReason)
}

// NewController creates a controller for one call
func NewController(
	callID, peerID uuid.UUID,
	callType domain.CallType,
	devices MediaDevices,
	factory TransportFactory,
	sender SignalSender,
) *Controller {
	return &Controller{
		callID:   callID,
		peerID:   peerID,
		callType: callType,
		devices:  devices,
		factory:  factory,
		sender:   sender,
	}
}

// OnRemoteTrack registers the remote media arrival callback
func (c *Controller) OnRemoteTrack(fn func(kind string)) {
	c.mu.Lock()
	c.onRemoteTrack = fn
	c.mu.Unlock()
}

// OnTerminated registers the transport failure callback. It fires at
// most once.
func (c *Controller) OnTerminated(fn func(reason domain.EndReason)) {
	c.mu.Lock()
	c.onTerminated = fn
	c.mu.Unlock()
}

// CallID returns the call this controller belongs to
func (c *Controller) CallID() uuid.UUID {
	return c.callID
}

// AcquireMedia obtains local capture for the call's type. Audio is
// always requested; video only for video calls.
func (c *Controller) AcquireMedia(ctx context.Context) error {
	media, err := c.devices.Acquire(ctx, true, c.callType == domain.CallTypeVideo)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		media.Close()
		return apperrors.SignalingError("Call already closed")
	}
	c.media = media
	return nil
}

// StartAsCaller builds the transport and sends the single offer.
// AcquireMedia must have succeeded first.
func (c *Controller) StartAsCaller(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.SignalingError("Call already closed")
	}
	if c.offerSent {
		c.mu.Unlock()
		return apperrors.SignalingError("Offer already sent")
	}
	c.offerSent = true
	media := c.media
	c.mu.Unlock()

	transport, err := c.setupTransport(media)
	if err != nil {
		return err
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConnectionFailed, "Failed to create offer", err)
	}

	return c.sender.SendOffer(c.callID, c.peerID, offer)
}

// StartAsCallee builds the transport and waits for the remote offer
func (c *Controller) StartAsCallee(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.SignalingError("Call already closed")
	}
	media := c.media
	c.mu.Unlock()

	_, err := c.setupTransport(media)
	return err
}

// ApplyRemoteOffer sets the peer's offer and answers it. Exactly one
// offer is accepted per controller.
func (c *Controller) ApplyRemoteOffer(ctx context.Context, callID uuid.UUID, offer SessionDescription) error {
	if callID != c.callID {
		return apperrors.SignalingError("Signal for unknown call")
	}

	c.mu.Lock()
	if c.closed || c.transport == nil {
		c.mu.Unlock()
		return apperrors.SignalingError("No active call transport")
	}
	if c.offerTaken || c.offerSent {
		c.mu.Unlock()
		return apperrors.SignalingError("Renegotiation is not supported")
	}
	c.offerTaken = true
	transport := c.transport
	c.mu.Unlock()

	answer, err := transport.CreateAnswer(ctx, offer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConnectionFailed, "Failed to create answer", err)
	}

	return c.sender.SendAnswer(c.callID, c.peerID, answer)
}

// ApplyRemoteAnswer completes the caller's exchange
func (c *Controller) ApplyRemoteAnswer(ctx context.Context, callID uuid.UUID, answer SessionDescription) error {
	if callID != c.callID {
		return apperrors.SignalingError("Signal for unknown call")
	}

	c.mu.Lock()
	if c.closed || c.transport == nil {
		c.mu.Unlock()
		return apperrors.SignalingError("No active call transport")
	}
	if !c.offerSent {
		c.mu.Unlock()
		return apperrors.SignalingError("Answer without a local offer")
	}
	transport := c.transport
	c.mu.Unlock()

	if err := transport.AcceptAnswer(ctx, answer); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConnectionFailed, "Failed to apply answer", err)
	}
	return nil
}

// ApplyRemoteICECandidate adds a peer candidate. Mismatched call IDs
// and transport errors are dropped silently; candidates are
// best-effort.
func (c *Controller) ApplyRemoteICECandidate(callID uuid.UUID, candidate ICECandidate) {
	if callID != c.callID {
		return
	}

	c.mu.Lock()
	transport := c.transport
	closed := c.closed
	c.mu.Unlock()
	if closed || transport == nil {
		return
	}

	if err := transport.AddICECandidate(candidate); err != nil {
		logger.Debug("Dropped remote ICE candidate",
			zap.String("call_id", c.callID.String()),
			zap.Error(err))
	}
}

// ToggleAudio flips the local audio mute state and returns the new
// enabled state
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.media == nil {
		return false
	}
	next := !c.media.AudioEnabled()
	c.media.SetAudioEnabled(next)
	return next
}

// ToggleVideo flips the local video state and returns the new enabled
// state
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.media == nil {
		return false
	}
	next := !c.media.VideoEnabled()
	c.media.SetVideoEnabled(next)
	return next
}

// Close releases transport and media unconditionally. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	transport := c.transport
	media := c.media
	c.transport = nil
	c.media = nil
	c.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if media != nil {
		media.Close()
	}
}

func (c *Controller) setupTransport(media MediaHandle) (PeerTransport, error) {
	transport, err := c.factory.NewTransport(media)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConnectionFailed, "Failed to create peer transport", err)
	}

	transport.OnICECandidate(func(candidate ICECandidate) {
		// Local candidate delivery is best-effort, same as the remote
		// direction
		if err := c.sender.SendICECandidate(c.callID, c.peerID, candidate); err != nil {
			logger.Debug("Failed to send ICE candidate",
				zap.String("call_id", c.callID.String()),
				zap.Error(err))
		}
	})

	transport.OnStateChange(func(state TransportState) {
		if state == TransportStateFailed || state == TransportStateDisconnected {
			c.terminate(domain.EndReasonConnectionFailed)
		}
	})

	transport.OnRemoteTrack(func(kind string) {
		c.mu.Lock()
		fn := c.onRemoteTrack
		c.mu.Unlock()
		if fn != nil {
			fn(kind)
		}
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		transport.Close()
		return nil, apperrors.SignalingError("Call already closed")
	}
	c.transport = transport
	c.mu.Unlock()

	return transport, nil
}

func (c *Controller) terminate(reason domain.EndReason) {
	c.mu.Lock()
	if c.terminated || c.closed {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	fn := c.onTerminated
	c.mu.Unlock()

	if fn != nil {
		fn(reason)
	}
}
