package callsm

import (
	"github.com/google/uuid"

	"peercall-backend/internal/domain"
)

// Event is a closed union of everything that can drive the machine:
// local user actions, server notifications, and transport results.
type Event interface{ isEvent() }

// User actions

type PlaceCall struct {
	ReceiverID uuid.UUID
	ChatID     uuid.UUID
	CallType   domain.CallType
}

type AcceptCall struct{}

type RejectCall struct{}

type HangUp struct{}

// Server notifications

type IncomingCall struct {
	CallID   uuid.UUID
	Caller   domain.UserProfile
	ChatID   uuid.UUID
	CallType domain.CallType
}

// CallAssigned is the call_initiated acknowledgement carrying the
// server-assigned call ID
type CallAssigned struct {
	CallID uuid.UUID
}

type PeerAnswered struct {
	CallID uuid.UUID
}

type PeerDeclined struct {
	CallID uuid.UUID
}

type CallEnded struct {
	CallID uuid.UUID
	Reason domain.EndReason
}

// CallRejectedByServer is a call_error received while initiating
type CallRejectedByServer struct {
	Message string
}

// Transport and media results

type MediaReady struct {
	CallID uuid.UUID
}

type MediaFailed struct {
	CallID  uuid.UUID
	Message string
}

type TransportConnected struct {
	CallID uuid.UUID
}

type TransportFailed struct {
	CallID uuid.UUID
}

// TornDown reports that the driver finished releasing resources
type TornDown struct{}

func (PlaceCall) isEvent()            {}
func (AcceptCall) isEvent()           {}
func (RejectCall) isEvent()           {}
func (HangUp) isEvent()               {}
func (IncomingCall) isEvent()         {}
func (CallAssigned) isEvent()         {}
func (PeerAnswered) isEvent()         {}
func (PeerDeclined) isEvent()         {}
func (CallEnded) isEvent()            {}
func (CallRejectedByServer) isEvent() {}
func (MediaReady) isEvent()           {}
func (MediaFailed) isEvent()          {}
func (TransportConnected) isEvent()   {}
func (TransportFailed) isEvent()      {}
func (TornDown) isEvent()             {}
