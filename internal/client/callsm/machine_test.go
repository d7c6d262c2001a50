package callsm

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"peercall-backend/internal/domain"
)

func TestCallerHappyPath(t *testing.T) {
	m := NewMachine()
	receiverID, chatID, callID := uuid.New(), uuid.New(), uuid.New()

	effects := m.Handle(PlaceCall{ReceiverID: receiverID, ChatID: chatID, CallType: domain.CallTypeVideo})
	assert.Equal(t, StateInitiating, m.State())
	assert.Equal(t, []Effect{SendInitiate{ReceiverID: receiverID, ChatID: chatID, CallType: domain.CallTypeVideo}}, effects)

	effects = m.Handle(CallAssigned{CallID: callID})
	assert.Empty(t, effects)
	assert.Equal(t, callID, m.Call().CallID)

	effects = m.Handle(PeerAnswered{CallID: callID})
	assert.Equal(t, StateConnecting, m.State())
	assert.Equal(t, []Effect{AcquireMedia{CallID: callID, CallType: domain.CallTypeVideo}}, effects)

	effects = m.Handle(MediaReady{CallID: callID})
	assert.Equal(t, []Effect{StartCaller{CallID: callID, PeerID: receiverID}}, effects)
	assert.Equal(t, StateConnecting, m.State())

	effects = m.Handle(TransportConnected{CallID: callID})
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, []Effect{StartDurationTimer{CallID: callID}}, effects)

	effects = m.Handle(HangUp{})
	assert.Equal(t, StateEnding, m.State())
	assert.Equal(t, []Effect{SendEnd{CallID: callID}, Teardown{}}, effects)

	m.Handle(TornDown{})
	assert.Equal(t, StateIdle, m.State())
}

func TestCalleeHappyPath(t *testing.T) {
	m := NewMachine()
	callID, callerID, chatID := uuid.New(), uuid.New(), uuid.New()
	caller := domain.UserProfile{ID: callerID, Username: "alice"}

	effects := m.Handle(IncomingCall{CallID: callID, Caller: caller, ChatID: chatID, CallType: domain.CallTypeAudio})
	assert.Equal(t, StateRinging, m.State())
	assert.Empty(t, effects)
	assert.Equal(t, caller, m.Call().Peer)
	assert.Equal(t, RoleCallee, m.Call().Role)

	effects = m.Handle(AcceptCall{})
	assert.Equal(t, StateConnecting, m.State())
	assert.Equal(t, []Effect{AcquireMedia{CallID: callID, CallType: domain.CallTypeAudio}}, effects)

	// Callee answers the call only after local capture succeeded
	effects = m.Handle(MediaReady{CallID: callID})
	assert.Equal(t, []Effect{
		SendAnswer{CallID: callID},
		StartCallee{CallID: callID, PeerID: callerID},
	}, effects)

	effects = m.Handle(TransportConnected{CallID: callID})
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, []Effect{StartDurationTimer{CallID: callID}}, effects)
}

func TestCalleeDeclines(t *testing.T) {
	m := NewMachine()
	callID := uuid.New()

	m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeVideo})
	effects := m.Handle(RejectCall{})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, []Effect{SendDecline{CallID: callID}, Teardown{}}, effects)
}

func TestCalleeMediaFailureDeclinesTowardPeer(t *testing.T) {
	m := NewMachine()
	callID := uuid.New()

	m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeVideo})
	m.Handle(AcceptCall{})

	effects := m.Handle(MediaFailed{CallID: callID, Message: "Camera in use"})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, []Effect{
		SendDecline{CallID: callID},
		Teardown{},
		NotifyError{Message: "Camera in use"},
	}, effects)
}

func TestCallerMediaFailureEndsTowardPeer(t *testing.T) {
	m := NewMachine()
	receiverID, callID := uuid.New(), uuid.New()

	m.Handle(PlaceCall{ReceiverID: receiverID, ChatID: uuid.New(), CallType: domain.CallTypeAudio})
	m.Handle(CallAssigned{CallID: callID})
	m.Handle(PeerAnswered{CallID: callID})

	effects := m.Handle(MediaFailed{CallID: callID, Message: "No microphone found"})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, SendEnd{CallID: callID}, effects[0])
}

func TestPeerDeclinedReturnsToIdle(t *testing.T) {
	m := NewMachine()
	callID := uuid.New()

	m.Handle(PlaceCall{ReceiverID: uuid.New(), ChatID: uuid.New(), CallType: domain.CallTypeVideo})
	m.Handle(CallAssigned{CallID: callID})

	effects := m.Handle(PeerDeclined{CallID: callID})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, []Effect{Teardown{}, NotifyError{Message: "Call declined"}}, effects)
}

func TestServerRejectionWhileInitiating(t *testing.T) {
	m := NewMachine()

	m.Handle(PlaceCall{ReceiverID: uuid.New(), ChatID: uuid.New(), CallType: domain.CallTypeVideo})
	effects := m.Handle(CallRejectedByServer{Message: "User is not available for calls"})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, []Effect{Teardown{}, NotifyError{Message: "User is not available for calls"}}, effects)
}

func TestTransportFailureEndsWithConnectionFailed(t *testing.T) {
	m := NewMachine()
	callID := uuid.New()

	m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeVideo})
	m.Handle(AcceptCall{})
	m.Handle(MediaReady{CallID: callID})
	m.Handle(TransportConnected{CallID: callID})

	effects := m.Handle(TransportFailed{CallID: callID})

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, []Effect{
		SendEnd{CallID: callID, Reason: domain.EndReasonConnectionFailed},
		Teardown{Reason: domain.EndReasonConnectionFailed},
		NotifyError{Message: "Connection failed"},
	}, effects)
}

func TestStaleCallEventsIgnored(t *testing.T) {
	m := NewMachine()
	callID, staleID := uuid.New(), uuid.New()

	m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeAudio})
	m.Handle(AcceptCall{})

	// Results belonging to a previous call must not move the machine
	assert.Empty(t, m.Handle(MediaReady{CallID: staleID}))
	assert.Empty(t, m.Handle(TransportConnected{CallID: staleID}))
	assert.Empty(t, m.Handle(CallEnded{CallID: staleID}))
	assert.Equal(t, StateConnecting, m.State())
}

func TestPlaceCallWhileBusyRejected(t *testing.T) {
	m := NewMachine()

	m.Handle(PlaceCall{ReceiverID: uuid.New(), ChatID: uuid.New(), CallType: domain.CallTypeVideo})
	effects := m.Handle(PlaceCall{ReceiverID: uuid.New(), ChatID: uuid.New(), CallType: domain.CallTypeAudio})

	assert.Equal(t, StateInitiating, m.State())
	assert.Equal(t, []Effect{NotifyError{Message: "Another call is already in progress"}}, effects)
}

func TestIncomingWhileBusyIgnored(t *testing.T) {
	m := NewMachine()
	firstID := uuid.New()

	m.Handle(IncomingCall{CallID: firstID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeAudio})
	effects := m.Handle(IncomingCall{CallID: uuid.New(), Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeVideo})

	assert.Empty(t, effects)
	assert.Equal(t, firstID, m.Call().CallID)
}

func TestEndedNoticeDuringEveryNonIdleState(t *testing.T) {
	states := []struct {
		name  string
		setup func(m *Machine, callID uuid.UUID)
	}{
		{"ringing", func(m *Machine, callID uuid.UUID) {
			m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeAudio})
		}},
		{"connecting", func(m *Machine, callID uuid.UUID) {
			m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeAudio})
			m.Handle(AcceptCall{})
		}},
		{"connected", func(m *Machine, callID uuid.UUID) {
			m.Handle(IncomingCall{CallID: callID, Caller: domain.UserProfile{ID: uuid.New()}, CallType: domain.CallTypeAudio})
			m.Handle(AcceptCall{})
			m.Handle(MediaReady{CallID: callID})
			m.Handle(TransportConnected{CallID: callID})
		}},
	}

	for _, tc := range states {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine()
			callID := uuid.New()
			tc.setup(m, callID)

			effects := m.Handle(CallEnded{CallID: callID, Reason: domain.EndReasonCallerEnded})

			assert.Equal(t, StateIdle, m.State())
			assert.Equal(t, []Effect{Teardown{Reason: domain.EndReasonCallerEnded}}, effects)
		})
	}
}
