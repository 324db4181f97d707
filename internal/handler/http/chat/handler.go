package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/middleware"
	"tourly-backend/internal/service/chat"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/pagination"
	"tourly-backend/pkg/response"
)

// ChatService reads and writes messages
type ChatService interface {
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.Message, error)
	GetMessagePage(ctx context.Context, conversationID uuid.UUID, limit, offset int) (*domain.MessagePage, error)
	GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) (*domain.MessagePage, error)
	AcknowledgeRead(ctx context.Context, conversationID, readerID uuid.UUID) error
}

// ConversationReader fetches conversations for access checks
type ConversationReader interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
}

// Handler handles chat HTTP requests
type Handler struct {
	chatService   ChatService
	conversations ConversationReader
}

// NewHandler creates a new chat handler
func NewHandler(chatService ChatService, conversations ConversationReader) *Handler {
	return &Handler{
		chatService:   chatService,
		conversations: conversations,
	}
}

// SendMessage handles sending a new message
// POST /v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	var req domain.MessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID, _, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           req.Text,
		ClientRef:      req.ClientRef,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// GetMessages returns a page of messages, oldest first. Without an offset
// the latest page is returned.
// GET /v1/conversations/:id/messages?limit=50&offset=0
func (h *Handler) GetMessages(c *gin.Context) {
	conversationID, ok := h.authorize(c)
	if !ok {
		return
	}

	offsetStr, hasOffset := c.GetQuery("offset")
	params, err := pagination.Parse(c.Query("limit"), offsetStr, hasOffset)
	if err != nil {
		if err == pagination.ErrInvalidOffset {
			response.ValidationError(c, "Invalid offset")
		} else {
			response.ValidationError(c, "Invalid limit")
		}
		return
	}

	var page *domain.MessagePage
	if params.HasOffset {
		page, err = h.chatService.GetMessagePage(c.Request.Context(), conversationID, params.Limit, params.Offset)
	} else {
		page, err = h.chatService.GetLatestMessages(c.Request.Context(), conversationID, params.Limit)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// MarkRead zeroes the caller's unread counter
// POST /v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	readerID, _, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.chatService.AcknowledgeRead(c.Request.Context(), conversationID, readerID); err != nil {
		if errors.HasCode(err, errors.ErrCodeForbidden) {
			err = errors.ConversationNotFoundError()
		}
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// authorize parses the conversation id and checks the caller takes part in
// it, writing the error response when not.
func (h *Handler) authorize(c *gin.Context) (uuid.UUID, bool) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return uuid.Nil, false
	}

	participantID, _, ok := middleware.Participant(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	conversation, err := h.conversations.GetByID(c.Request.Context(), conversationID)
	if err != nil {
		response.FromError(c, err)
		return uuid.Nil, false
	}
	if conversation == nil || !conversation.HasParticipant(participantID) {
		response.FromError(c, errors.ConversationNotFoundError())
		return uuid.Nil, false
	}

	return conversationID, true
}

// RegisterRoutes mounts the message routes on the authenticated
// /v1/conversations group. send guards the send route, typically a rate limit.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, send ...gin.HandlerFunc) {
	group.GET("/:id/messages", h.GetMessages)
	group.POST("/:id/messages", append(send, h.SendMessage)...)
	group.POST("/:id/read", h.MarkRead)
}
