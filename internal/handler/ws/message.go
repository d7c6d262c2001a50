package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"peercall-backend/internal/domain"
)

// MessageKind enumerates every message that may cross the signaling
// socket. The set is closed: dispatch switches over these constants and
// anything else is rejected with a call_error.
type MessageKind string

// Client-to-server kinds
const (
	KindInitiateCall     MessageKind = "initiate_call"
	KindAnswerCall       MessageKind = "answer_call"
	KindDeclineCall      MessageKind = "decline_call"
	KindEndCall          MessageKind = "end_call"
	KindWebRTCOffer      MessageKind = "webrtc_offer"
	KindWebRTCAnswer     MessageKind = "webrtc_answer"
	KindICECandidate     MessageKind = "webrtc_ice_candidate"
	KindGetOnlineUsers   MessageKind = "get_online_users"
	KindUserStatusChange MessageKind = "user_status_change"
)

// Server-to-client kinds
const (
	KindIncomingCall      MessageKind = "incoming_call"
	KindCallInitiated     MessageKind = "call_initiated"
	KindCallAnswered      MessageKind = "call_answered"
	KindCallDeclined      MessageKind = "call_declined"
	KindCallEnded         MessageKind = "call_ended"
	KindCallError         MessageKind = "call_error"
	KindOnlineUsers       MessageKind = "online_users"
	KindUserStatusUpdated MessageKind = "user_status_updated"
)

// Envelope is the wire frame: a kind plus a kind-specific payload
type Envelope struct {
	Type    MessageKind     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client-to-server payloads

type InitiateCallPayload struct {
	ReceiverID uuid.UUID       `json:"receiverId"`
	ChatID     uuid.UUID       `json:"chatId"`
	CallType   domain.CallType `json:"callType"`
}

type AnswerCallPayload struct {
	CallID uuid.UUID `json:"callId"`
}

type DeclineCallPayload struct {
	CallID uuid.UUID `json:"callId"`
}

type EndCallPayload struct {
	CallID    uuid.UUID        `json:"callId"`
	EndReason domain.EndReason `json:"endReason,omitempty"`
}

// SignalPayload carries an SDP offer or answer between peers. The SDP
// body is forwarded opaquely.
type SignalPayload struct {
	CallID       uuid.UUID       `json:"callId"`
	TargetUserID uuid.UUID       `json:"targetUserId,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	FromUserID   uuid.UUID       `json:"fromUserId,omitempty"`
}

type ICECandidatePayload struct {
	CallID       uuid.UUID       `json:"callId"`
	TargetUserID uuid.UUID       `json:"targetUserId,omitempty"`
	Candidate    json.RawMessage `json:"candidate"`
	FromUserID   uuid.UUID       `json:"fromUserId,omitempty"`
}

type UserStatusChangePayload struct {
	IsOnline bool `json:"isOnline"`
}

// Server-to-client payloads

type IncomingCallPayload struct {
	CallID   uuid.UUID          `json:"callId"`
	Caller   domain.UserProfile `json:"caller"`
	ChatID   uuid.UUID          `json:"chatId"`
	CallType domain.CallType    `json:"callType"`
}

type CallInitiatedPayload struct {
	CallID     uuid.UUID       `json:"callId"`
	ReceiverID uuid.UUID       `json:"receiverId"`
	CallType   domain.CallType `json:"callType"`
}

type CallAnsweredPayload struct {
	CallID     uuid.UUID          `json:"callId"`
	AnsweredBy domain.UserProfile `json:"answeredBy"`
}

type CallDeclinedPayload struct {
	CallID     uuid.UUID          `json:"callId"`
	DeclinedBy domain.UserProfile `json:"declinedBy"`
}

type CallEndedPayload struct {
	CallID    uuid.UUID           `json:"callId"`
	EndedBy   *domain.UserProfile `json:"endedBy,omitempty"`
	EndReason domain.EndReason    `json:"endReason"`
}

type CallErrorPayload struct {
	Message string `json:"message"`
}

type OnlineUsersPayload struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

type UserStatusUpdatedPayload struct {
	UserID   uuid.UUID `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// encode marshals an envelope for the wire. Marshal failure on these
// types means a programming error, so the caller may treat nil as fatal.
func encode(kind MessageKind, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(Envelope{Type: kind, Payload: raw})
	if err != nil {
		return nil
	}
	return data
}
