package callsm

import (
	"github.com/google/uuid"

	"peercall-backend/internal/domain"
)

// Effect is a side effect the driver executes after a transition. The
// machine itself never performs I/O.
type Effect interface{ isEffect() }

// SendInitiate emits the initiate_call request
type SendInitiate struct {
	ReceiverID uuid.UUID
	ChatID     uuid.UUID
	CallType   domain.CallType
}

// SendAnswer emits answer_call for the current call
type SendAnswer struct {
	CallID uuid.UUID
}

// SendDecline emits decline_call
type SendDecline struct {
	CallID uuid.UUID
}

// SendEnd emits end_call
type SendEnd struct {
	CallID uuid.UUID
	Reason domain.EndReason
}

// AcquireMedia asks the driver to obtain local capture; the driver
// reports back with MediaReady or MediaFailed
type AcquireMedia struct {
	CallID   uuid.UUID
	CallType domain.CallType
}

// StartCaller creates the peer transport and sends the offer
type StartCaller struct {
	CallID uuid.UUID
	PeerID uuid.UUID
}

// StartCallee creates the peer transport and waits for the offer
type StartCallee struct {
	CallID uuid.UUID
	PeerID uuid.UUID
}

// StartDurationTimer begins counting elapsed call time
type StartDurationTimer struct {
	CallID uuid.UUID
}

// Teardown stops timers, releases media, and closes the controller
type Teardown struct {
	Reason domain.EndReason
}

// NotifyError surfaces a user-facing notice
type NotifyError struct {
	Message string
}

func (SendInitiate) isEffect()       {}
func (SendAnswer) isEffect()         {}
func (SendDecline) isEffect()        {}
func (SendEnd) isEffect()            {}
func (AcquireMedia) isEffect()       {}
func (StartCaller) isEffect()        {}
func (StartCallee) isEffect()        {}
func (StartDurationTimer) isEffect() {}
func (Teardown) isEffect()           {}
func (NotifyError) isEffect()        {}
