package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents the media profile of a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// IsValid reports whether the call type is one of the known profiles
func (t CallType) IsValid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallStatus represents the lifecycle state of a call record
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusDeclined  CallStatus = "declined"
	CallStatusMissed    CallStatus = "missed"
	CallStatusEnded     CallStatus = "ended"
	CallStatusFailed    CallStatus = "failed"
)

// EndReason explains why a call left its active states
type EndReason string

const (
	EndReasonCallerEnded      EndReason = "caller_ended"
	EndReasonReceiverEnded    EndReason = "receiver_ended"
	EndReasonTimeout          EndReason = "timeout"
	EndReasonConnectionFailed EndReason = "connection_failed"
	EndReasonDeclined         EndReason = "declined"
)

// Call represents a persisted audio/video call record.
// Once a terminal status is reached the record is immutable.
type Call struct {
	CallID          uuid.UUID  `json:"call_id"`
	CallerID        uuid.UUID  `json:"caller_id"`
	ReceiverID      uuid.UUID  `json:"receiver_id"`
	ChatID          uuid.UUID  `json:"chat_id"`
	CallType        CallType   `json:"call_type"`
	Status          CallStatus `json:"status"`
	InitiatedAt     time.Time  `json:"initiated_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	EndReason       EndReason  `json:"end_reason,omitempty"`
}

// IsTerminal reports whether the status admits no further transitions
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusDeclined, CallStatusMissed, CallStatusEnded, CallStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// call status transition:
//
//	initiated -> answered | declined | missed
//	answered  -> ended
//	initiated | answered -> ended | failed (hang-up or lost connection)
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	switch s {
	case CallStatusInitiated:
		switch next {
		case CallStatusAnswered, CallStatusDeclined, CallStatusMissed, CallStatusEnded, CallStatusFailed:
			return true
		}
	case CallStatusAnswered:
		switch next {
		case CallStatusEnded, CallStatusFailed:
			return true
		}
	}
	return false
}

// IsTerminal reports whether the call record is immutable
func (c *Call) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// IsParticipant reports whether userID is the caller or the receiver
func (c *Call) IsParticipant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.ReceiverID == userID
}

// OtherParty returns the counter-party of userID. The second return is
// false when userID is not a participant.
func (c *Call) OtherParty(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.CallerID:
		return c.ReceiverID, true
	case c.ReceiverID:
		return c.CallerID, true
	}
	return uuid.Nil, false
}

// ComputeDuration returns the call duration in whole seconds: the time
// between answer and end when the call was answered, zero otherwise.
func ComputeDuration(answeredAt, endedAt *time.Time) int {
	if answeredAt == nil || endedAt == nil {
		return 0
	}
	d := int(endedAt.Sub(*answeredAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// CallTypeStats aggregates ledger statistics for one call type over
// answered and ended calls.
type CallTypeStats struct {
	CallType        CallType `json:"call_type"`
	TotalCalls      int64    `json:"total_calls"`
	TotalDuration   int64    `json:"total_duration"`
	AverageDuration float64  `json:"avg_duration"`
}
