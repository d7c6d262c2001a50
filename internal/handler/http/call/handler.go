package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"peercall-backend/internal/domain"
	"peercall-backend/pkg/constants"
	"peercall-backend/pkg/pagination"
	"peercall-backend/pkg/response"
)

// CallReader is the query surface of the call ledger
type CallReader interface {
	ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*domain.Call, int64, error)
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error)
	StatsByUser(ctx context.Context, userID uuid.UUID) ([]domain.CallTypeStats, error)
}

// MembershipChecker verifies the requester belongs to a chat before its
// call history is exposed
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
}

// Handler serves the read-only call history API
type Handler struct {
	calls      CallReader
	membership MembershipChecker
}

// NewHandler creates a call history handler
func NewHandler(calls CallReader, membership MembershipChecker) *Handler {
	return &Handler{
		calls:      calls,
		membership: membership,
	}
}

// GetChatCalls returns the paginated call history of a chat
// GET /v1/chats/:chatId/calls
func (h *Handler) GetChatCalls(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		response.ValidationError(c, "Invalid chat ID")
		return
	}

	userID, ok := requesterID(c)
	if !ok {
		return
	}

	isMember, err := h.membership.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		response.InternalError(c, "Failed to verify chat access")
		return
	}
	if !isMember {
		response.Forbidden(c, "Invalid chat or access denied")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"), constants.DefaultCallHistoryLimit)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	calls, total, err := h.calls.ListByChat(c.Request.Context(), chatID, params.Limit, params.Offset)
	if err != nil {
		response.InternalError(c, "Failed to load call history")
		return
	}

	response.Success(c, http.StatusOK, pagination.Build(params, total, calls))
}

// GetRecentCalls returns the requester's most recent calls across all
// chats
// GET /v1/calls/recent
func (h *Handler) GetRecentCalls(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	params, err := pagination.Parse("1", c.Query("limit"), constants.DefaultRecentCallsLimit)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	calls, err := h.calls.ListRecentByUser(c.Request.Context(), userID, params.Limit)
	if err != nil {
		response.InternalError(c, "Failed to load recent calls")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}

// GetCallStats returns per-type aggregates over the requester's
// answered and ended calls
// GET /v1/calls/stats
func (h *Handler) GetCallStats(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}

	stats, err := h.calls.StatsByUser(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "Failed to load call stats")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"stats": stats})
}

func requesterID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
