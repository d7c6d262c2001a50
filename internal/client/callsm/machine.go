package callsm

import (
	"github.com/google/uuid"

	"peercall-backend/internal/domain"
)

// State is the client call lifecycle position
type State int

const (
	StateIdle State = iota
	StateInitiating
	StateRinging
	StateConnecting
	StateConnected
	StateEnding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiating:
		return "initiating"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Role distinguishes which side of the call this machine drives
type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

// CallDescriptor is the current call's identity as known to the
// machine
type CallDescriptor struct {
	CallID   uuid.UUID
	PeerID   uuid.UUID
	ChatID   uuid.UUID
	CallType domain.CallType
	Role     Role
	Peer     domain.UserProfile
}

// Machine is the client call state machine. It is a pure reducer:
// Handle mutates the state and returns the effects the driver must
// execute. The caller guarantees single-threaded access.
type Machine struct {
	state State
	call  CallDescriptor
	// callID is zero while a placed call waits for the server to
	// assign one
	hasCall bool
}

// NewMachine starts in idle
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Call returns the current call descriptor; valid only outside idle
func (m *Machine) Call() CallDescriptor {
	return m.call
}

// Handle applies one event and returns the effects to execute. Events
// carrying a call ID that does not match the current call are ignored,
// which guards against results of operations belonging to an already
// torn down call.
func (m *Machine) Handle(ev Event) []Effect {
	switch e := ev.(type) {
	case PlaceCall:
		return m.handlePlaceCall(e)
	case IncomingCall:
		return m.handleIncomingCall(e)
	case CallAssigned:
		return m.handleCallAssigned(e)
	case AcceptCall:
		return m.handleAcceptCall()
	case RejectCall:
		return m.handleRejectCall()
	case HangUp:
		return m.handleHangUp()
	case PeerAnswered:
		return m.handlePeerAnswered(e)
	case PeerDeclined:
		return m.handlePeerDeclined(e)
	case CallEnded:
		return m.handleCallEnded(e)
	case CallRejectedByServer:
		return m.handleServerRejection(e)
	case MediaReady:
		return m.handleMediaReady(e)
	case MediaFailed:
		return m.handleMediaFailed(e)
	case TransportConnected:
		return m.handleTransportConnected(e)
	case TransportFailed:
		return m.handleTransportFailed(e)
	case TornDown:
		return m.handleTornDown()
	default:
		return nil
	}
}

func (m *Machine) handlePlaceCall(e PlaceCall) []Effect {
	if m.state != StateIdle {
		return []Effect{NotifyError{Message: "Another call is already in progress"}}
	}
	m.state = StateInitiating
	m.call = CallDescriptor{
		PeerID:   e.ReceiverID,
		ChatID:   e.ChatID,
		CallType: e.CallType,
		Role:     RoleCaller,
	}
	m.hasCall = true
	return []Effect{SendInitiate{ReceiverID: e.ReceiverID, ChatID: e.ChatID, CallType: e.CallType}}
}

func (m *Machine) handleIncomingCall(e IncomingCall) []Effect {
	if m.state != StateIdle {
		// Busy here, let the ring timeout resolve it on the server
		return nil
	}
	m.state = StateRinging
	m.call = CallDescriptor{
		CallID:   e.CallID,
		PeerID:   e.Caller.ID,
		ChatID:   e.ChatID,
		CallType: e.CallType,
		Role:     RoleCallee,
		Peer:     e.Caller,
	}
	m.hasCall = true
	return nil
}

// handleCallAssigned records the server-assigned call ID for a placed
// call
func (m *Machine) handleCallAssigned(e CallAssigned) []Effect {
	if m.state != StateInitiating {
		return nil
	}
	m.call.CallID = e.CallID
	return nil
}

func (m *Machine) handleAcceptCall() []Effect {
	if m.state != StateRinging {
		return nil
	}
	m.state = StateConnecting
	return []Effect{AcquireMedia{CallID: m.call.CallID, CallType: m.call.CallType}}
}

func (m *Machine) handleRejectCall() []Effect {
	if m.state != StateRinging {
		return nil
	}
	callID := m.call.CallID
	m.reset()
	return []Effect{SendDecline{CallID: callID}, Teardown{}}
}

func (m *Machine) handleHangUp() []Effect {
	if m.state == StateIdle || m.state == StateEnding {
		return nil
	}
	callID := m.call.CallID
	m.state = StateEnding
	return []Effect{SendEnd{CallID: callID}, Teardown{}}
}

func (m *Machine) handlePeerAnswered(e PeerAnswered) []Effect {
	if m.state != StateInitiating || !m.matches(e.CallID) {
		return nil
	}
	m.state = StateConnecting
	return []Effect{AcquireMedia{CallID: m.call.CallID, CallType: m.call.CallType}}
}

func (m *Machine) handlePeerDeclined(e PeerDeclined) []Effect {
	if m.state == StateIdle || !m.matches(e.CallID) {
		return nil
	}
	m.reset()
	return []Effect{Teardown{}, NotifyError{Message: "Call declined"}}
}

func (m *Machine) handleCallEnded(e CallEnded) []Effect {
	if m.state == StateIdle || !m.matches(e.CallID) {
		return nil
	}
	m.reset()
	return []Effect{Teardown{Reason: e.Reason}}
}

func (m *Machine) handleServerRejection(e CallRejectedByServer) []Effect {
	if m.state != StateInitiating {
		return nil
	}
	m.reset()
	return []Effect{Teardown{}, NotifyError{Message: e.Message}}
}

// handleMediaReady moves the negotiation forward once local capture
// succeeded: the caller creates and sends the offer, the callee answers
// the call and waits for the peer's offer
func (m *Machine) handleMediaReady(e MediaReady) []Effect {
	if m.state != StateConnecting || !m.matches(e.CallID) {
		return nil
	}
	if m.call.Role == RoleCaller {
		return []Effect{StartCaller{CallID: m.call.CallID, PeerID: m.call.PeerID}}
	}
	return []Effect{
		SendAnswer{CallID: m.call.CallID},
		StartCallee{CallID: m.call.CallID, PeerID: m.call.PeerID},
	}
}

// handleMediaFailed aborts locally and signals the peer: a callee that
// cannot capture declines, a caller ends
func (m *Machine) handleMediaFailed(e MediaFailed) []Effect {
	if m.state != StateConnecting || !m.matches(e.CallID) {
		return nil
	}
	callID := m.call.CallID
	role := m.call.Role
	m.reset()

	effects := []Effect{Teardown{}, NotifyError{Message: e.Message}}
	if role == RoleCallee {
		return append([]Effect{SendDecline{CallID: callID}}, effects...)
	}
	return append([]Effect{SendEnd{CallID: callID}}, effects...)
}

func (m *Machine) handleTransportConnected(e TransportConnected) []Effect {
	if m.state != StateConnecting || !m.matches(e.CallID) {
		return nil
	}
	m.state = StateConnected
	return []Effect{StartDurationTimer{CallID: m.call.CallID}}
}

func (m *Machine) handleTransportFailed(e TransportFailed) []Effect {
	if m.state == StateIdle || !m.matches(e.CallID) {
		return nil
	}
	callID := m.call.CallID
	m.reset()
	return []Effect{
		SendEnd{CallID: callID, Reason: domain.EndReasonConnectionFailed},
		Teardown{Reason: domain.EndReasonConnectionFailed},
		NotifyError{Message: "Connection failed"},
	}
}

// handleTornDown completes the ending state once the driver finished
// teardown
func (m *Machine) handleTornDown() []Effect {
	if m.state == StateEnding {
		m.reset()
	}
	return nil
}

// matches guards against events for a call this machine no longer
// owns. A zero event ID matches while the placed call still awaits its
// server-assigned ID.
func (m *Machine) matches(callID uuid.UUID) bool {
	if !m.hasCall {
		return false
	}
	if callID == uuid.Nil || m.call.CallID == uuid.Nil {
		return true
	}
	return m.call.CallID == callID
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.call = CallDescriptor{}
	m.hasCall = false
}
