package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/realtime"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
)

// MessageRepository persists messages
type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	GetPage(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	Count(ctx context.Context, conversationID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, messages []*domain.Message) error
}

// ConversationService is the part of the conversation accessor chat needs
type ConversationService interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	MarkAsRead(ctx context.Context, conversationID uuid.UUID, role domain.Role) error
	RecordNewMessage(ctx context.Context, conversationID uuid.UUID, previewText string, receiver domain.Role) error
}

// EventPublisher emits domain events for downstream consumers
type EventPublisher interface {
	MessageSent(ctx context.Context, message *domain.Message, receiver domain.Role) error
}

// Config holds message limits and side-effect timing
type Config struct {
	MaxMessageLength  int
	PageSize          int
	SideEffectTimeout time.Duration
}

// Service handles chat business logic
type Service struct {
	messageRepo   MessageRepository
	conversations ConversationService
	publisher     realtime.Publisher
	events        EventPublisher
	config        Config
	logger        *zap.Logger
	now           func() time.Time

	wg sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithEvents enables domain event publishing
func WithEvents(events EventPublisher) Option {
	return func(s *Service) { s.events = events }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new chat service
func NewService(
	messageRepo MessageRepository,
	conversations ConversationService,
	publisher realtime.Publisher,
	cfg Config,
	log *zap.Logger,
	opts ...Option,
) *Service {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = domain.MaxMessageLength
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 5 * time.Second
	}

	s := &Service{
		messageRepo:   messageRepo,
		conversations: conversations,
		publisher:     publisher,
		config:        cfg,
		logger:        logger.OrNop(log),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessageInput contains message data
type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Text           string
	ClientRef      string
}

// SendMessage validates and stores a message, then updates the conversation
// and notifies listeners in the background. Background failures are logged
// and never affect the returned message.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*domain.Message, error) {
	text := domain.NormalizeText(input.Text)
	if text == "" {
		metrics.ChatMessageRejectedTotal.WithLabelValues("validation").Inc()
		return nil, errors.ValidationError("Message cannot be empty")
	}
	if domain.TextLength(text) > s.config.MaxMessageLength {
		metrics.ChatMessageRejectedTotal.WithLabelValues("validation").Inc()
		return nil, errors.ValidationError(fmt.Sprintf("Message exceeds %d characters", s.config.MaxMessageLength))
	}

	conversation, err := s.conversations.GetByID(ctx, input.ConversationID)
	if err != nil {
		metrics.ChatMessagesSentTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if conversation == nil {
		metrics.ChatMessageRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, errors.ConversationNotFoundError()
	}

	senderRole, ok := domain.RoleOf(conversation, input.SenderID)
	if !ok {
		metrics.ChatMessageRejectedTotal.WithLabelValues("forbidden").Inc()
		return nil, errors.ForbiddenError("You are not a participant in this conversation")
	}

	message := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderID:       input.SenderID,
		Text:           text,
		IsRead:         false,
		ClientRef:      input.ClientRef,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.messageRepo.Save(ctx, message); err != nil {
		metrics.ChatMessagesSentTotal.WithLabelValues("error").Inc()
		return nil, errors.DatabaseError(err)
	}
	metrics.ChatMessagesSentTotal.WithLabelValues("persisted").Inc()

	receiver := senderRole.Counterpart()
	s.background(func(ctx context.Context) {
		s.afterSend(ctx, message, receiver)
	})

	return message, nil
}

func (s *Service) afterSend(ctx context.Context, message *domain.Message, receiver domain.Role) {
	fields := []zap.Field{
		zap.String("conversation_id", message.ConversationID.String()),
		zap.String("message_id", message.ID.String()),
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, realtime.Created(message)); err != nil {
			metrics.ChatSideEffectFailuresTotal.WithLabelValues("realtime").Inc()
			s.logger.Warn("Failed to publish message event", append(fields, zap.Error(err))...)
		}
	}

	if err := s.conversations.RecordNewMessage(ctx, message.ConversationID, message.Text, receiver); err != nil {
		metrics.ChatSideEffectFailuresTotal.WithLabelValues("conversation_update").Inc()
		s.logger.Error("Failed to update conversation after send", append(fields, zap.Error(err))...)
	}

	if s.events != nil {
		if err := s.events.MessageSent(ctx, message, receiver); err != nil {
			metrics.ChatSideEffectFailuresTotal.WithLabelValues("event").Inc()
			s.logger.Warn("Failed to emit message.sent event", append(fields, zap.Error(err))...)
		}
	}
}

// background runs fn detached from the caller's context with the configured timeout
func (s *Service) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Panic in chat side effect", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.SideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Drain waits for all in-flight background work
func (s *Service) Drain() {
	s.wg.Wait()
}

// GetMessagePage returns messages oldest first starting at offset, plus the
// conversation total.
func (s *Service) GetMessagePage(ctx context.Context, conversationID uuid.UUID, limit, offset int) (*domain.MessagePage, error) {
	if limit <= 0 {
		limit = s.config.PageSize
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.messageRepo.Count(ctx, conversationID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	messages, err := s.messageRepo.GetPage(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	return &domain.MessagePage{Messages: messages, Total: total, Offset: offset}, nil
}

// GetLatestMessages returns the newest limit messages, oldest first
func (s *Service) GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) (*domain.MessagePage, error) {
	if limit <= 0 {
		limit = s.config.PageSize
	}

	total, err := s.messageRepo.Count(ctx, conversationID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	offset := total - limit
	if offset < 0 {
		offset = 0
	}

	messages, err := s.messageRepo.GetPage(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	return &domain.MessagePage{Messages: messages, Total: total, Offset: offset}, nil
}

// AcknowledgeRead zeroes the reader's unread counter. The counterpart's
// messages in the latest page are then flagged read in the background and
// echoed as message.updated events.
func (s *Service) AcknowledgeRead(ctx context.Context, conversationID, readerID uuid.UUID) error {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return errors.ConversationNotFoundError()
	}

	role, ok := domain.RoleOf(conversation, readerID)
	if !ok {
		return errors.ForbiddenError("You are not a participant in this conversation")
	}

	if err := s.conversations.MarkAsRead(ctx, conversationID, role); err != nil {
		return err
	}

	senderID := role.Counterpart().ParticipantID(conversation)
	s.background(func(ctx context.Context) {
		s.flagRead(ctx, conversationID, senderID)
	})

	return nil
}

func (s *Service) flagRead(ctx context.Context, conversationID, senderID uuid.UUID) {
	page, err := s.GetLatestMessages(ctx, conversationID, s.config.PageSize)
	if err != nil {
		metrics.ChatSideEffectFailuresTotal.WithLabelValues("mark_read").Inc()
		s.logger.Warn("Failed to load messages for read receipts",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
		return
	}

	unread := make([]*domain.Message, 0)
	for _, message := range page.Messages {
		if message.SenderID == senderID && !message.IsRead {
			unread = append(unread, message)
		}
	}
	if len(unread) == 0 {
		return
	}

	if err := s.messageRepo.MarkRead(ctx, unread); err != nil {
		metrics.ChatSideEffectFailuresTotal.WithLabelValues("mark_read").Inc()
		s.logger.Warn("Failed to flag messages read",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
		return
	}

	if s.publisher == nil {
		return
	}
	for _, message := range unread {
		message.IsRead = true
		if err := s.publisher.Publish(ctx, realtime.Updated(message)); err != nil {
			metrics.ChatSideEffectFailuresTotal.WithLabelValues("realtime").Inc()
			s.logger.Warn("Failed to publish read receipt",
				zap.String("message_id", message.ID.String()),
				zap.Error(err))
		}
	}
}
