package ws

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"peercall-backend/internal/domain"
	"peercall-backend/internal/repository/cockroach"
	"peercall-backend/internal/service/presence"
	apperrors "peercall-backend/pkg/errors"
	"peercall-backend/pkg/jwt"
	"peercall-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

type MockCallAuthorizer struct {
	mock.Mock
}

func (m *MockCallAuthorizer) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

// testHub builds a hub with directly injected clients so relay delivery
// can be observed without real sockets
func testHub(t *testing.T, userIDs ...uuid.UUID) (*Hub, map[uuid.UUID]chan []byte) {
	t.Helper()

	registry := presence.NewRegistry(nil)
	manager := jwt.NewJWTManager("test-secret-at-least-32-characters!!", time.Hour)
	hub := NewHub(registry, manager, 16)

	channels := make(map[uuid.UUID]chan []byte)
	hub.mu.Lock()
	for _, userID := range userIDs {
		ch := make(chan []byte, 8)
		hub.clients[userID] = &Client{
			hub:     hub,
			send:    ch,
			userID:  userID,
			connID:  uuid.New(),
			profile: domain.UserProfile{ID: userID, Username: "user-" + userID.String()[:8]},
			release: func() {},
		}
		channels[userID] = ch
	}
	hub.mu.Unlock()

	return hub, channels
}

func receiveEnvelope(t *testing.T, ch chan []byte) *Envelope {
	t.Helper()
	select {
	case data := <-ch:
		var env Envelope
		assert.NoError(t, json.Unmarshal(data, &env))
		return &env
	case <-time.After(time.Second):
		t.Fatal("expected a message, got none")
		return nil
	}
}

func TestForwardOfferStampsSenderAndDelivers(t *testing.T) {
	callerID, receiverID := uuid.New(), uuid.New()
	hub, channels := testHub(t, callerID, receiverID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	call := &domain.Call{
		CallID:     uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     domain.CallStatusInitiated,
	}
	calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := relay.ForwardOffer(context.Background(), callerID, &SignalPayload{
		CallID:       call.CallID,
		TargetUserID: receiverID,
		Offer:        json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
	})
	assert.NoError(t, err)

	env := receiveEnvelope(t, channels[receiverID])
	assert.Equal(t, KindWebRTCOffer, env.Type)

	var p SignalPayload
	assert.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, callerID, p.FromUserID)
	assert.Equal(t, call.CallID, p.CallID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(p.Offer))
}

func TestForwardOfferDefaultsTargetToOtherParty(t *testing.T) {
	callerID, receiverID := uuid.New(), uuid.New()
	hub, channels := testHub(t, callerID, receiverID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	call := &domain.Call{
		CallID:     uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     domain.CallStatusAnswered,
	}
	calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := relay.ForwardAnswer(context.Background(), receiverID, &SignalPayload{
		CallID: call.CallID,
		Answer: json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
	assert.NoError(t, err)

	env := receiveEnvelope(t, channels[callerID])
	assert.Equal(t, KindWebRTCAnswer, env.Type)
}

func TestForwardOfferFromNonParticipantRejected(t *testing.T) {
	callerID, receiverID, outsiderID := uuid.New(), uuid.New(), uuid.New()
	hub, channels := testHub(t, callerID, receiverID, outsiderID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	call := &domain.Call{
		CallID:     uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     domain.CallStatusAnswered,
	}
	calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := relay.ForwardOffer(context.Background(), outsiderID, &SignalPayload{
		CallID:       call.CallID,
		TargetUserID: receiverID,
		Offer:        json.RawMessage(`{}`),
	})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
	assert.Equal(t, "Invalid call or access denied", apperrors.GetAppError(err).Message)
	assert.Empty(t, channels[receiverID])
}

func TestForwardOfferUnknownCallRejected(t *testing.T) {
	senderID := uuid.New()
	hub, _ := testHub(t, senderID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	callID := uuid.New()
	calls.On("GetByID", mock.Anything, callID).Return(nil, cockroach.ErrCallNotFound)

	err := relay.ForwardOffer(context.Background(), senderID, &SignalPayload{
		CallID: callID,
		Offer:  json.RawMessage(`{}`),
	})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
}

func TestForwardICECandidateSilentOnFailure(t *testing.T) {
	senderID, receiverID := uuid.New(), uuid.New()
	hub, channels := testHub(t, senderID, receiverID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	callID := uuid.New()
	calls.On("GetByID", mock.Anything, callID).Return(nil, cockroach.ErrCallNotFound)

	// No error surfaces and nothing is delivered
	relay.ForwardICECandidate(context.Background(), senderID, &ICECandidatePayload{
		CallID:    callID,
		Candidate: json.RawMessage(`{"candidate":"candidate:1"}`),
	})

	assert.Empty(t, channels[senderID])
	assert.Empty(t, channels[receiverID])
}

func TestForwardICECandidateDelivers(t *testing.T) {
	callerID, receiverID := uuid.New(), uuid.New()
	hub, channels := testHub(t, callerID, receiverID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	call := &domain.Call{
		CallID:     uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     domain.CallStatusAnswered,
	}
	calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	relay.ForwardICECandidate(context.Background(), callerID, &ICECandidatePayload{
		CallID:       call.CallID,
		TargetUserID: receiverID,
		Candidate:    json.RawMessage(`{"candidate":"candidate:1"}`),
	})

	env := receiveEnvelope(t, channels[receiverID])
	assert.Equal(t, KindICECandidate, env.Type)

	var p ICECandidatePayload
	assert.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, callerID, p.FromUserID)
}

func TestSendToSelfAsExplicitTargetRejected(t *testing.T) {
	callerID, receiverID := uuid.New(), uuid.New()
	hub, _ := testHub(t, callerID, receiverID)

	calls := new(MockCallAuthorizer)
	relay := NewRelay(calls, hub)

	call := &domain.Call{
		CallID:     uuid.New(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		Status:     domain.CallStatusAnswered,
	}
	calls.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := relay.ForwardOffer(context.Background(), callerID, &SignalPayload{
		CallID:       call.CallID,
		TargetUserID: callerID,
		Offer:        json.RawMessage(`{}`),
	})

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSignaling))
}

func TestHubPushToOfflineUserIsNoop(t *testing.T) {
	hub, _ := testHub(t)

	delivered := hub.Push(uuid.New(), KindCallEnded, CallEndedPayload{
		CallID:    uuid.New(),
		EndReason: domain.EndReasonTimeout,
	})

	assert.False(t, delivered)
}

func TestHubProfileFallsBackToBareID(t *testing.T) {
	userID := uuid.New()
	hub, _ := testHub(t, userID)

	connected := hub.Profile(userID)
	assert.Equal(t, userID, connected.ID)
	assert.NotEmpty(t, connected.Username)

	strangerID := uuid.New()
	assert.Equal(t, domain.UserProfile{ID: strangerID}, hub.Profile(strangerID))
}

func TestBroadcastStatusSkipsSubject(t *testing.T) {
	aliceID, bobID := uuid.New(), uuid.New()
	hub, channels := testHub(t, aliceID, bobID)

	hub.BroadcastStatus(aliceID, false, time.Now())

	env := receiveEnvelope(t, channels[bobID])
	assert.Equal(t, KindUserStatusUpdated, env.Type)

	var p UserStatusUpdatedPayload
	assert.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, aliceID, p.UserID)
	assert.False(t, p.IsOnline)

	assert.Empty(t, channels[aliceID])
}
