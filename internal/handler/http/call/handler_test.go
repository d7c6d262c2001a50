package call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"peercall-backend/internal/domain"
)

type MockCallReader struct {
	mock.Mock
}

func (m *MockCallReader) ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Call, int64, error) {
	args := m.Called(ctx, chatID, limit, offset)
	return args.Get(0).([]*domain.Call), args.Get(1).(int64), args.Error(2)
}

func (m *MockCallReader) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]*domain.Call), args.Error(1)
}

func (m *MockCallReader) StatsByUser(ctx context.Context, userID uuid.UUID) ([]domain.CallTypeStats, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.CallTypeStats), args.Error(1)
}

type MockMembershipChecker struct {
	mock.Mock
}

func (m *MockMembershipChecker) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func setupRouter(handler *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	router.GET("/v1/chats/:chatId/calls", handler.GetChatCalls)
	router.GET("/v1/calls/recent", handler.GetRecentCalls)
	router.GET("/v1/calls/stats", handler.GetCallStats)
	return router
}

func TestGetChatCallsRequiresMembership(t *testing.T) {
	calls := new(MockCallReader)
	membership := new(MockMembershipChecker)
	handler := NewHandler(calls, membership)

	userID, chatID := uuid.New(), uuid.New()
	membership.On("IsMember", mock.Anything, chatID, userID).Return(false, nil)

	router := setupRouter(handler, userID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chats/"+chatID.String()+"/calls", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	calls.AssertNotCalled(t, "ListByChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetChatCallsReturnsPagedHistory(t *testing.T) {
	calls := new(MockCallReader)
	membership := new(MockMembershipChecker)
	handler := NewHandler(calls, membership)

	userID, chatID := uuid.New(), uuid.New()
	history := []*domain.Call{
		{
			CallID:      uuid.New(),
			CallerID:    userID,
			ReceiverID:  uuid.New(),
			ChatID:      chatID,
			CallType:    domain.CallTypeVideo,
			Status:      domain.CallStatusEnded,
			InitiatedAt: time.Now().UTC(),
		},
	}

	membership.On("IsMember", mock.Anything, chatID, userID).Return(true, nil)
	calls.On("ListByChat", mock.Anything, chatID, 50, 0).Return(history, int64(1), nil)

	router := setupRouter(handler, userID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chats/"+chatID.String()+"/calls", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Page  int               `json:"page"`
			Total int64             `json:"total"`
			Data  []json.RawMessage `json:"data"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data.Data, 1)
	assert.Equal(t, int64(1), body.Data.Total)
}

func TestGetChatCallsRejectsBadChatID(t *testing.T) {
	handler := NewHandler(new(MockCallReader), new(MockMembershipChecker))

	router := setupRouter(handler, uuid.New())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/chats/not-a-uuid/calls", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRecentCalls(t *testing.T) {
	calls := new(MockCallReader)
	handler := NewHandler(calls, new(MockMembershipChecker))

	userID := uuid.New()
	calls.On("ListRecentByUser", mock.Anything, userID, 20).Return([]*domain.Call{}, nil)

	router := setupRouter(handler, userID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/calls/recent", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	calls.AssertExpectations(t)
}

func TestGetCallStats(t *testing.T) {
	calls := new(MockCallReader)
	handler := NewHandler(calls, new(MockMembershipChecker))

	userID := uuid.New()
	stats := []domain.CallTypeStats{
		{CallType: domain.CallTypeVideo, TotalCalls: 4, TotalDuration: 360},
	}
	calls.On("StatsByUser", mock.Anything, userID).Return(stats, nil)

	router := setupRouter(handler, userID)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/calls/stats", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Stats []domain.CallTypeStats `json:"stats"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Stats, 1)
	assert.Equal(t, int64(4), body.Data.Stats[0].TotalCalls)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	handler := NewHandler(new(MockCallReader), new(MockMembershipChecker))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/calls/recent", handler.GetRecentCalls)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/calls/recent", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
