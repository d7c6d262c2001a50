// Package client is the Go call client: a signaling connection, the
// call state machine, and the peer-connection controller wired
// together behind a small API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peercall-backend/internal/client/callsm"
	"peercall-backend/internal/client/rtc"
	"peercall-backend/internal/domain"
	"peercall-backend/internal/handler/ws"
	"peercall-backend/pkg/logger"
)

// Signaler is the wire surface the driver sends through
type Signaler interface {
	Initiate(receiverID, chatID uuid.UUID, callType domain.CallType) error
	Answer(callID uuid.UUID) error
	Decline(callID uuid.UUID) error
	End(callID uuid.UUID, reason domain.EndReason) error
	rtc.SignalSender
}

// Notices surfaces user-visible call activity; all callbacks are
// optional and invoked from the driver goroutine
type Notices struct {
	OnIncomingCall func(call callsm.CallDescriptor)
	OnConnected    func(callID uuid.UUID)
	OnEnded        func(reason domain.EndReason, elapsed time.Duration)
	OnError        func(message string)
}

// Driver executes machine effects and feeds machine events. All
// machine access happens on the run loop goroutine, keeping the
// reducer single-writer.
type Driver struct {
	machine *callsm.Machine
	signal  Signaler
	devices rtc.MediaDevices
	factory rtc.TransportFactory
	notices Notices

	events chan callsm.Event

	controller *rtc.Controller
	startedAt  time.Time

	mu     sync.Mutex
	closed bool
}

// NewDriver creates a driver. Run must be called before any events
// flow.
func NewDriver(signal Signaler, devices rtc.MediaDevices, factory rtc.TransportFactory, notices Notices) *Driver {
	return &Driver{
		machine: callsm.NewMachine(),
		signal:  signal,
		devices: devices,
		factory: factory,
		notices: notices,
		events:  make(chan callsm.Event, 64),
	}
}

// Run processes events until ctx is done. It owns the machine and the
// controller lifecycle.
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.teardownController()
			return
		case ev := <-d.events:
			d.step(ev)
		}
	}
}

// HandleEnvelope translates a server message into machine events or
// controller signals. Safe to call from the wire read goroutine.
func (d *Driver) HandleEnvelope(env *ws.Envelope) {
	switch env.Type {
	case ws.KindIncomingCall:
		var p ws.IncomingCallPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.IncomingCall{CallID: p.CallID, Caller: p.Caller, ChatID: p.ChatID, CallType: p.CallType})
		}
	case ws.KindCallInitiated:
		var p ws.CallInitiatedPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.CallAssigned{CallID: p.CallID})
		}
	case ws.KindCallAnswered:
		var p ws.CallAnsweredPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.PeerAnswered{CallID: p.CallID})
		}
	case ws.KindCallDeclined:
		var p ws.CallDeclinedPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.PeerDeclined{CallID: p.CallID})
		}
	case ws.KindCallEnded:
		var p ws.CallEndedPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.CallEnded{CallID: p.CallID, Reason: p.EndReason})
		}
	case ws.KindCallError:
		var p ws.CallErrorPayload
		if decodeInto(env.Payload, &p) {
			d.post(callsm.CallRejectedByServer{Message: p.Message})
		}
	case ws.KindWebRTCOffer:
		var p ws.SignalPayload
		if decodeInto(env.Payload, &p) {
			d.applyRemoteOffer(&p)
		}
	case ws.KindWebRTCAnswer:
		var p ws.SignalPayload
		if decodeInto(env.Payload, &p) {
			d.applyRemoteAnswer(&p)
		}
	case ws.KindICECandidate:
		var p ws.ICECandidatePayload
		if decodeInto(env.Payload, &p) {
			d.applyRemoteCandidate(&p)
		}
	case ws.KindOnlineUsers, ws.KindUserStatusUpdated:
		// Presence updates are informational for the call driver
	default:
		logger.Debug("Ignoring unexpected server message", zap.String("kind", string(env.Type)))
	}
}

// PlaceCall starts an outbound call
func (d *Driver) PlaceCall(receiverID, chatID uuid.UUID, callType domain.CallType) {
	d.post(callsm.PlaceCall{ReceiverID: receiverID, ChatID: chatID, CallType: callType})
}

// Accept answers the ringing call
func (d *Driver) Accept() {
	d.post(callsm.AcceptCall{})
}

// Reject declines the ringing call
func (d *Driver) Reject() {
	d.post(callsm.RejectCall{})
}

// HangUp ends the active call
func (d *Driver) HangUp() {
	d.post(callsm.HangUp{})
}

// ToggleAudio flips the local mute state; returns the new enabled
// state
func (d *Driver) ToggleAudio() bool {
	d.mu.Lock()
	ctrl := d.controller
	d.mu.Unlock()
	if ctrl == nil {
		return false
	}
	return ctrl.ToggleAudio()
}

// ToggleVideo flips the local camera state; returns the new enabled
// state
func (d *Driver) ToggleVideo() bool {
	d.mu.Lock()
	ctrl := d.controller
	d.mu.Unlock()
	if ctrl == nil {
		return false
	}
	return ctrl.ToggleVideo()
}

func (d *Driver) post(ev callsm.Event) {
	select {
	case d.events <- ev:
	default:
		logger.Warn("Dropping call event, driver queue full")
	}
}

// step applies one event and executes the resulting effects in order
func (d *Driver) step(ev callsm.Event) {
	if incoming, ok := ev.(callsm.IncomingCall); ok {
		if d.machine.State() == callsm.StateIdle && d.notices.OnIncomingCall != nil {
			defer func(desc callsm.CallDescriptor) {
				d.notices.OnIncomingCall(desc)
			}(callsm.CallDescriptor{
				CallID:   incoming.CallID,
				PeerID:   incoming.Caller.ID,
				ChatID:   incoming.ChatID,
				CallType: incoming.CallType,
				Peer:     incoming.Caller,
			})
		}
	}

	for _, effect := range d.machine.Handle(ev) {
		d.execute(effect)
	}
}

func (d *Driver) execute(effect callsm.Effect) {
	switch e := effect.(type) {
	case callsm.SendInitiate:
		if err := d.signal.Initiate(e.ReceiverID, e.ChatID, e.CallType); err != nil {
			d.post(callsm.CallRejectedByServer{Message: "Failed to reach the call server"})
		}

	case callsm.SendAnswer:
		if err := d.signal.Answer(e.CallID); err != nil {
			logger.Error("Failed to send answer", zap.Error(err))
		}

	case callsm.SendDecline:
		if err := d.signal.Decline(e.CallID); err != nil {
			logger.Error("Failed to send decline", zap.Error(err))
		}

	case callsm.SendEnd:
		if err := d.signal.End(e.CallID, e.Reason); err != nil {
			logger.Error("Failed to send end", zap.Error(err))
		}

	case callsm.AcquireMedia:
		d.acquireMedia(e)

	case callsm.StartCaller:
		d.startNegotiation(e.CallID, true)

	case callsm.StartCallee:
		d.startNegotiation(e.CallID, false)

	case callsm.StartDurationTimer:
		d.startedAt = time.Now()
		if d.notices.OnConnected != nil {
			d.notices.OnConnected(e.CallID)
		}

	case callsm.Teardown:
		elapsed := time.Duration(0)
		if !d.startedAt.IsZero() {
			elapsed = time.Since(d.startedAt)
		}
		d.startedAt = time.Time{}
		d.teardownController()
		d.post(callsm.TornDown{})
		if d.notices.OnEnded != nil {
			d.notices.OnEnded(e.Reason, elapsed)
		}

	case callsm.NotifyError:
		if d.notices.OnError != nil {
			d.notices.OnError(e.Message)
		}
	}
}

// acquireMedia builds the controller for the current call and obtains
// capture asynchronously
func (d *Driver) acquireMedia(e callsm.AcquireMedia) {
	desc := d.machine.Call()
	ctrl := rtc.NewController(desc.CallID, desc.PeerID, desc.CallType, d.devices, d.factory, d.signal)

	ctrl.OnTerminated(func(reason domain.EndReason) {
		d.post(callsm.TransportFailed{CallID: ctrl.CallID()})
	})
	ctrl.OnRemoteTrack(func(kind string) {
		d.post(callsm.TransportConnected{CallID: ctrl.CallID()})
	})

	d.mu.Lock()
	d.controller = ctrl
	d.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := ctrl.AcquireMedia(ctx); err != nil {
			message := "Failed to access camera or microphone."
			var mediaErr *rtc.MediaError
			if errors.As(err, &mediaErr) {
				message = mediaErr.UserMessage()
			}
			d.post(callsm.MediaFailed{CallID: e.CallID, Message: message})
			return
		}
		d.post(callsm.MediaReady{CallID: e.CallID})
	}()
}

func (d *Driver) startNegotiation(callID uuid.UUID, asCaller bool) {
	d.mu.Lock()
	ctrl := d.controller
	d.mu.Unlock()
	if ctrl == nil || ctrl.CallID() != callID {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var err error
		if asCaller {
			err = ctrl.StartAsCaller(ctx)
		} else {
			err = ctrl.StartAsCallee(ctx)
		}
		if err != nil {
			logger.Error("Peer negotiation failed", zap.Error(err))
			d.post(callsm.TransportFailed{CallID: callID})
		}
	}()
}

func (d *Driver) applyRemoteOffer(p *ws.SignalPayload) {
	ctrl := d.currentController(p.CallID)
	if ctrl == nil {
		return
	}
	var sdp rtc.SessionDescription
	if err := json.Unmarshal(p.Offer, &sdp); err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := ctrl.ApplyRemoteOffer(ctx, p.CallID, sdp); err != nil {
			logger.Warn("Rejected remote offer", zap.Error(err))
		}
	}()
}

func (d *Driver) applyRemoteAnswer(p *ws.SignalPayload) {
	ctrl := d.currentController(p.CallID)
	if ctrl == nil {
		return
	}
	var sdp rtc.SessionDescription
	if err := json.Unmarshal(p.Answer, &sdp); err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := ctrl.ApplyRemoteAnswer(ctx, p.CallID, sdp); err != nil {
			logger.Warn("Rejected remote answer", zap.Error(err))
		}
	}()
}

func (d *Driver) applyRemoteCandidate(p *ws.ICECandidatePayload) {
	ctrl := d.currentController(p.CallID)
	if ctrl == nil {
		return
	}
	var candidate rtc.ICECandidate
	if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
		return
	}
	ctrl.ApplyRemoteICECandidate(p.CallID, candidate)
}

func (d *Driver) currentController(callID uuid.UUID) *rtc.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.controller == nil || d.controller.CallID() != callID {
		return nil
	}
	return d.controller
}

func (d *Driver) teardownController() {
	d.mu.Lock()
	ctrl := d.controller
	d.controller = nil
	d.mu.Unlock()
	if ctrl != nil {
		ctrl.Close()
	}
}

func decodeInto(raw json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Warn("Malformed payload from server", zap.Error(err))
		return false
	}
	return true
}
