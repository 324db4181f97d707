package conversation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/middleware"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/response"
)

// ConversationService opens and reads conversations
type ConversationService interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	OpenFromListing(ctx context.Context, listingID, touristID uuid.UUID, providerID *uuid.UUID) (*domain.Conversation, error)
}

// InboxService lists a participant's inbox
type InboxService interface {
	ListInbox(ctx context.Context, participantID uuid.UUID, role domain.Role) ([]domain.InboxItem, error)
}

// Handler handles conversation HTTP requests
type Handler struct {
	conversations ConversationService
	inbox         InboxService
}

// NewHandler creates a new conversation handler
func NewHandler(conversations ConversationService, inbox InboxService) *Handler {
	return &Handler{
		conversations: conversations,
		inbox:         inbox,
	}
}

// ListConversations returns the caller's inbox
// GET /v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	participantID, role, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	items, err := h.inbox.ListInbox(c.Request.Context(), participantID, role)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"conversations": items,
	})
}

// OpenConversation returns the tourist's conversation about a listing,
// creating it on first contact
// POST /v1/conversations
func (h *Handler) OpenConversation(c *gin.Context) {
	var req domain.ConversationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	participantID, role, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	if role != domain.Tourist {
		response.Forbidden(c, "Only tourists can start conversations")
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		response.ValidationError(c, "Invalid listing ID")
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		response.ValidationError(c, "Invalid provider ID")
		return
	}

	conversation, err := h.conversations.OpenFromListing(c.Request.Context(), listingID, participantID, &providerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conversation)
}

// GetConversation retrieves a specific conversation. Conversations the
// caller is not part of are reported as missing.
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	participantID, _, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversation, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if conversation == nil || !conversation.HasParticipant(participantID) {
		response.FromError(c, errors.ConversationNotFoundError())
		return
	}

	response.Success(c, http.StatusOK, conversation)
}

// RegisterRoutes mounts the conversation routes on an authenticated group
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.ListConversations)
	group.POST("", h.OpenConversation)
	group.GET("/:id", h.GetConversation)
}
