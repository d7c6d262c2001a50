package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"peercall-backend/internal/domain"
	"peercall-backend/internal/repository/cockroach"
	"peercall-backend/pkg/cache"
	apperrors "peercall-backend/pkg/errors"
	"peercall-backend/pkg/logger"
	"peercall-backend/pkg/metrics"
)

// CallRepository is the call ledger the session manager owns
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	Transition(ctx context.Context, callID uuid.UUID, from []domain.CallStatus, mut cockroach.TransitionMutation) (*domain.Call, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error)
}

// MembershipChecker verifies chat membership for call admission
type MembershipChecker interface {
	AreMembers(ctx context.Context, chatID, first, second uuid.UUID) (bool, error)
}

// PresenceChecker answers whether a user currently has a live connection
type PresenceChecker interface {
	IsOnline(userID uuid.UUID) bool
}

// Notifier pushes a server-to-client event to a user's live connection.
// Delivery is best-effort: pushing to an offline user is a no-op.
type Notifier interface {
	NotifyIncomingCall(userID uuid.UUID, call *domain.Call, caller domain.UserProfile)
	NotifyCallInitiated(userID uuid.UUID, call *domain.Call)
	NotifyCallAnswered(userID uuid.UUID, callID uuid.UUID, answeredBy domain.UserProfile)
	NotifyCallDeclined(userID uuid.UUID, callID uuid.UUID, declinedBy domain.UserProfile)
	NotifyCallEnded(userID uuid.UUID, callID uuid.UUID, endedBy *domain.UserProfile, reason domain.EndReason)
}

// ProfileResolver resolves a user ID to the identity embedded in
// notification payloads
type ProfileResolver interface {
	Profile(userID uuid.UUID) domain.UserProfile
}

// Service is the call session manager. It owns the persisted Call record
// and its state machine: admission checks, the ring timeout, and every
// status transition.
type Service struct {
	repo        CallRepository
	membership  MembershipChecker
	presence    PresenceChecker
	notifier    Notifier
	profiles    ProfileResolver
	ringTimeout time.Duration

	// memberCache fronts repeated membership lookups on the signaling
	// hot path
	memberCache *cache.MemoryCache

	// ringTimers holds the cancellable ring timer per initiated call.
	// Cancelled on any transition out of initiated so no scheduled
	// callback outlives the ring phase.
	timersMu   sync.Mutex
	ringTimers map[uuid.UUID]*time.Timer
}

// NewService creates a call session manager
func NewService(
	repo CallRepository,
	membership MembershipChecker,
	presence PresenceChecker,
	notifier Notifier,
	profiles ProfileResolver,
	ringTimeout time.Duration,
	memberCacheTTL time.Duration,
) *Service {
	return &Service{
		repo:        repo,
		membership:  membership,
		presence:    presence,
		notifier:    notifier,
		profiles:    profiles,
		ringTimeout: ringTimeout,
		memberCache: cache.NewMemoryCache(memberCacheTTL, 10000),
		ringTimers:  make(map[uuid.UUID]*time.Timer),
	}
}

// Initiate admits a new call. The receiver must share the chat with the
// caller and be online; when the receiver is offline no record is
// persisted. On success the receiver gets incoming_call, the caller gets
// call_initiated, and the ring timer is armed.
func (s *Service) Initiate(ctx context.Context, callerID, receiverID, chatID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	if callerID == receiverID {
		metrics.CallsAdmissionRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, apperrors.ValidationError("Cannot call yourself")
	}
	if !callType.IsValid() {
		metrics.CallsAdmissionRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, apperrors.ValidationError("Invalid call type")
	}

	ok, err := s.areMembers(ctx, chatID, callerID, receiverID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !ok {
		metrics.CallsAdmissionRejectedTotal.WithLabelValues("access_denied").Inc()
		return nil, apperrors.AccessDeniedError("Invalid chat or access denied")
	}

	if !s.presence.IsOnline(receiverID) {
		metrics.CallsAdmissionRejectedTotal.WithLabelValues("unavailable").Inc()
		return nil, apperrors.UserUnavailableError()
	}

	call := &domain.Call{
		CallID:      uuid.New(),
		CallerID:    callerID,
		ReceiverID:  receiverID,
		ChatID:      chatID,
		CallType:    callType,
		Status:      domain.CallStatusInitiated,
		InitiatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, call); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	metrics.CallsInitiatedTotal.WithLabelValues(string(callType)).Inc()
	metrics.CallsActive.Inc()

	s.notifier.NotifyIncomingCall(receiverID, call, s.profiles.Profile(callerID))
	s.notifier.NotifyCallInitiated(callerID, call)

	s.armRingTimer(call.CallID)

	logger.Info("Call initiated",
		zap.String("call_id", call.CallID.String()),
		zap.String("caller_id", callerID.String()),
		zap.String("receiver_id", receiverID.String()),
		zap.String("call_type", string(callType)))

	return call, nil
}

// Answer transitions an initiated call to answered. Only the call's
// receiver may answer.
func (s *Service) Answer(ctx context.Context, callID, answererID uuid.UUID) (*domain.Call, error) {
	call, err := s.authorizeReceiver(ctx, callID, answererID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := s.repo.Transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated},
		cockroach.TransitionMutation{
			Status:     domain.CallStatusAnswered,
			AnsweredAt: &now,
		})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.cancelRingTimer(callID)
	s.notifier.NotifyCallAnswered(call.CallerID, callID, s.profiles.Profile(answererID))

	logger.Info("Call answered", zap.String("call_id", callID.String()))
	return updated, nil
}

// Decline transitions an initiated call to declined. Only the call's
// receiver may decline.
func (s *Service) Decline(ctx context.Context, callID, declinerID uuid.UUID) (*domain.Call, error) {
	call, err := s.authorizeReceiver(ctx, callID, declinerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated, err := s.repo.Transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated},
		cockroach.TransitionMutation{
			Status:    domain.CallStatusDeclined,
			EndedAt:   &now,
			EndReason: domain.EndReasonDeclined,
		})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.cancelRingTimer(callID)
	s.recordCompletion(updated)
	s.notifier.NotifyCallDeclined(call.CallerID, callID, s.profiles.Profile(declinerID))

	logger.Info("Call declined", zap.String("call_id", callID.String()))
	return updated, nil
}

// End transitions a call to ended. Either party may end; the surviving
// party is notified. Ending an already-terminal call fails without a
// second state change or duplicate notification.
func (s *Service) End(ctx context.Context, callID, enderID uuid.UUID, reason domain.EndReason) (*domain.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !call.IsParticipant(enderID) {
		return nil, apperrors.SignalingError("Invalid call or access denied")
	}
	if call.IsTerminal() {
		return nil, apperrors.CallTerminalError()
	}

	if reason == "" {
		if enderID == call.CallerID {
			reason = domain.EndReasonCallerEnded
		} else {
			reason = domain.EndReasonReceiverEnded
		}
	}

	now := time.Now().UTC()
	updated, err := s.repo.Transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusAnswered},
		cockroach.TransitionMutation{
			Status:    domain.CallStatusEnded,
			EndedAt:   &now,
			EndReason: reason,
		})
	if err != nil {
		return nil, s.transitionError(err)
	}

	s.cancelRingTimer(callID)
	s.recordCompletion(updated)

	if otherID, ok := call.OtherParty(enderID); ok {
		profile := s.profiles.Profile(enderID)
		s.notifier.NotifyCallEnded(otherID, callID, &profile, reason)
	}

	logger.Info("Call ended",
		zap.String("call_id", callID.String()),
		zap.String("end_reason", string(reason)))
	return updated, nil
}

// HandleDisconnect force-ends every non-terminal call involving a user
// whose connection dropped, notifying the surviving party.
func (s *Service) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	calls, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		logger.Error("Failed to find active calls on disconnect",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, call := range calls {
		updated, err := s.repo.Transition(ctx, call.CallID,
			[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusAnswered},
			cockroach.TransitionMutation{
				Status:    domain.CallStatusEnded,
				EndedAt:   &now,
				EndReason: domain.EndReasonConnectionFailed,
			})
		if err != nil {
			// Lost the race against answer/end/timeout; nothing to do
			continue
		}

		s.cancelRingTimer(call.CallID)
		s.recordCompletion(updated)

		if otherID, ok := call.OtherParty(userID); ok {
			profile := s.profiles.Profile(userID)
			s.notifier.NotifyCallEnded(otherID, call.CallID, &profile, domain.EndReasonConnectionFailed)
		}

		logger.Info("Call force-ended on disconnect",
			zap.String("call_id", call.CallID.String()),
			zap.String("user_id", userID.String()))
	}
}

// Shutdown cancels all pending ring timers
func (s *Service) Shutdown() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for callID, timer := range s.ringTimers {
		timer.Stop()
		delete(s.ringTimers, callID)
	}
}

// armRingTimer schedules the missed-call transition for an initiated
// call. The handle is stored so any transition out of initiated cancels
// it instead of leaving the callback to fire as a no-op.
func (s *Service) armRingTimer(callID uuid.UUID) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.ringTimers[callID] = time.AfterFunc(s.ringTimeout, func() {
		s.ringTimerFired(callID)
	})
}

func (s *Service) cancelRingTimer(callID uuid.UUID) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if timer, ok := s.ringTimers[callID]; ok {
		timer.Stop()
		delete(s.ringTimers, callID)
	}
}

// ringTimerFired marks a still-initiated call as missed. The conditional
// transition makes this safe against a concurrent answer/decline: the
// loser of the race has no effect.
func (s *Service) ringTimerFired(callID uuid.UUID) {
	s.timersMu.Lock()
	delete(s.ringTimers, callID)
	s.timersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	updated, err := s.repo.Transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated},
		cockroach.TransitionMutation{
			Status:    domain.CallStatusMissed,
			EndedAt:   &now,
			EndReason: domain.EndReasonTimeout,
		})
	if err != nil {
		if !errors.Is(err, cockroach.ErrStatusConflict) {
			logger.Error("Ring timeout transition failed",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
		return
	}

	s.recordCompletion(updated)

	// Both parties hear about the timeout if still connected
	s.notifier.NotifyCallEnded(updated.CallerID, callID, nil, domain.EndReasonTimeout)
	s.notifier.NotifyCallEnded(updated.ReceiverID, callID, nil, domain.EndReasonTimeout)

	logger.Info("Call missed on ring timeout", zap.String("call_id", callID.String()))
}

func (s *Service) getCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, cockroach.ErrCallNotFound) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return call, nil
}

// authorizeReceiver loads the call and verifies userID is its receiver
// and the record is not terminal
func (s *Service) authorizeReceiver(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != userID {
		return nil, apperrors.SignalingError("Invalid call or access denied")
	}
	if call.IsTerminal() {
		return nil, apperrors.CallTerminalError()
	}
	return call, nil
}

// transitionError converts repository transition failures into the
// signaling error taxonomy
func (s *Service) transitionError(err error) error {
	switch {
	case errors.Is(err, cockroach.ErrStatusConflict):
		return apperrors.CallTerminalError()
	case errors.Is(err, cockroach.ErrCallNotFound):
		return apperrors.CallNotFoundError()
	default:
		return apperrors.DatabaseError(err)
	}
}

func (s *Service) areMembers(ctx context.Context, chatID, first, second uuid.UUID) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", chatID, first, second)
	if v, ok := s.memberCache.Get(key); ok {
		return v.(bool), nil
	}

	ok, err := s.membership.AreMembers(ctx, chatID, first, second)
	if err != nil {
		return false, err
	}
	// Negative results are cached too; membership changes reach the
	// signaling path within the cache TTL
	s.memberCache.Set(key, ok, 0)
	return ok, nil
}

func (s *Service) recordCompletion(call *domain.Call) {
	metrics.CallsActive.Dec()
	metrics.CallsCompletedTotal.WithLabelValues(
		string(call.CallType), string(call.Status), string(call.EndReason)).Inc()
	if call.AnsweredAt != nil {
		metrics.CallDurationSeconds.WithLabelValues(string(call.CallType)).
			Observe(float64(call.DurationSeconds))
	}
}
