package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	"peercall-backend/internal/repository/cockroach"
	apperrors "peercall-backend/pkg/errors"
	"peercall-backend/pkg/logger"
	"peercall-backend/pkg/metrics"
)

// CallAuthorizer looks up a call for relay authorization
type CallAuthorizer interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
}

// Relay forwards SDP and ICE payloads between the two participants of a
// call. Payloads are opaque: the relay authorizes and addresses, it
// never inspects SDP.
type Relay struct {
	calls CallAuthorizer
	hub   *Hub
}

// NewRelay creates a signal relay backed by the call ledger for
// authorization
func NewRelay(calls CallAuthorizer, hub *Hub) *Relay {
	return &Relay{calls: calls, hub: hub}
}

// ForwardOffer relays an SDP offer to the target participant. The
// sender must be a participant of the call; failures surface to the
// sender as call_error.
func (r *Relay) ForwardOffer(ctx context.Context, senderID uuid.UUID, p *SignalPayload) error {
	target, err := r.authorize(ctx, senderID, p.CallID, p.TargetUserID)
	if err != nil {
		return err
	}

	p.FromUserID = senderID
	r.hub.Push(target, KindWebRTCOffer, p)
	return nil
}

// ForwardAnswer relays an SDP answer to the target participant
func (r *Relay) ForwardAnswer(ctx context.Context, senderID uuid.UUID, p *SignalPayload) error {
	target, err := r.authorize(ctx, senderID, p.CallID, p.TargetUserID)
	if err != nil {
		return err
	}

	p.FromUserID = senderID
	r.hub.Push(target, KindWebRTCAnswer, p)
	return nil
}

// ForwardICECandidate relays an ICE candidate. Candidates are frequent
// and individually droppable, so every failure path is silent toward
// the sender.
func (r *Relay) ForwardICECandidate(ctx context.Context, senderID uuid.UUID, p *ICECandidatePayload) {
	target, err := r.authorize(ctx, senderID, p.CallID, p.TargetUserID)
	if err != nil {
		metrics.SignalingDroppedTotal.WithLabelValues(string(KindICECandidate), "unauthorized").Inc()
		logger.Debug("Dropped ICE candidate",
			zap.String("sender_id", senderID.String()),
			zap.String("call_id", p.CallID.String()),
			zap.Error(err))
		return
	}

	p.FromUserID = senderID
	r.hub.Push(target, KindICECandidate, p)
}

// authorize verifies the sender participates in the call and resolves
// the delivery target. An omitted target defaults to the other
// participant; an explicit target must also be a participant.
func (r *Relay) authorize(ctx context.Context, senderID, callID, targetID uuid.UUID) (uuid.UUID, error) {
	call, err := r.calls.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return uuid.Nil, apperrors.SignalingError("Invalid call or access denied")
		}
		return uuid.Nil, apperrors.DatabaseError(err)
	}

	if !call.IsParticipant(senderID) {
		return uuid.Nil, apperrors.SignalingError("Invalid call or access denied")
	}

	if targetID == uuid.Nil {
		other, _ := call.OtherParty(senderID)
		return other, nil
	}
	if !call.IsParticipant(targetID) || targetID == senderID {
		return uuid.Nil, apperrors.SignalingError("Invalid call or access denied")
	}
	return targetID, nil
}
