package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
)

// Repository persists conversation rows
type Repository interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	FindByListingAndTourist(ctx context.Context, listingID, touristID uuid.UUID) (*domain.Conversation, error)
	CreateIfAbsent(ctx context.Context, conversation *domain.Conversation) (bool, error)
	ListByParticipant(ctx context.Context, role domain.Role, participantID uuid.UUID, limit int) ([]*domain.Conversation, error)
	ResetUnread(ctx context.Context, conversationID uuid.UUID, role domain.Role) error
	RecordMessage(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time, receiver domain.Role) error
}

// ListingRepository reads listings for titles and ownership
type ListingRepository interface {
	GetListing(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error)
}

// ParticipantResolver resolves display records
type ParticipantResolver interface {
	Resolve(ctx context.Context, id uuid.UUID, role domain.Role) (domain.ParticipantView, error)
}

// Config holds inbox and preview limits
type Config struct {
	InboxLimit    int
	PreviewLength int
}

// Service handles conversation business logic
type Service struct {
	conversationRepo Repository
	listingRepo      ListingRepository
	participants     ParticipantResolver
	config           Config
	logger           *zap.Logger
	now              func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new conversation service
func NewService(
	conversationRepo Repository,
	listingRepo ListingRepository,
	participants ParticipantResolver,
	cfg Config,
	log *zap.Logger,
	opts ...Option,
) *Service {
	if cfg.InboxLimit <= 0 {
		cfg.InboxLimit = 50
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = domain.PreviewLength
	}

	s := &Service{
		conversationRepo: conversationRepo,
		listingRepo:      listingRepo,
		participants:     participants,
		config:           cfg,
		logger:           logger.OrNop(log),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetByID retrieves a conversation. Returns (nil, nil) when it does not exist.
func (s *Service) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conversation, nil
}

// GetOrCreate returns the conversation for (listing, tourist), creating it
// with zeroed counters on first contact. Concurrent first contacts converge
// on a single row through the store's unique (listing_id, tourist_id) index.
func (s *Service) GetOrCreate(ctx context.Context, listingID, touristID, providerID uuid.UUID) (*domain.Conversation, error) {
	existing, err := s.conversationRepo.FindByListingAndTourist(ctx, listingID, touristID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	if existing != nil {
		metrics.ChatConversationOpenedTotal.WithLabelValues("reused").Inc()
		return existing, nil
	}

	now := s.now()
	conversation := &domain.Conversation{
		ID:             uuid.New(),
		ListingID:      listingID,
		TouristID:      touristID,
		ProviderID:     providerID,
		LastMessageAt:  &now,
		TouristUnread:  0,
		ProviderUnread: 0,
		CreatedAt:      now,
	}

	created, err := s.conversationRepo.CreateIfAbsent(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if created {
		metrics.ChatConversationOpenedTotal.WithLabelValues("created").Inc()
		s.logger.Info("Conversation created",
			zap.String("conversation_id", conversation.ID.String()),
			zap.String("listing_id", listingID.String()),
			zap.String("tourist_id", touristID.String()))
		return conversation, nil
	}

	// Lost a first-contact race; the winner's row is authoritative.
	winner, err := s.conversationRepo.FindByListingAndTourist(ctx, listingID, touristID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read conversation: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("conversation for listing %s vanished after conflict", listingID)
	}
	metrics.ChatConversationOpenedTotal.WithLabelValues("reused").Inc()
	return winner, nil
}

// OpenFromListing is GetOrCreate for a tourist contacting a listing's
// provider. The listing must exist and, when providerID is given, belong to it.
func (s *Service) OpenFromListing(ctx context.Context, listingID, touristID uuid.UUID, providerID *uuid.UUID) (*domain.Conversation, error) {
	listing, err := s.listingRepo.GetListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listing == nil {
		return nil, errors.NotFoundError("Listing")
	}
	if providerID != nil && *providerID != listing.ProviderID {
		return nil, errors.ValidationError("provider_id does not own this listing")
	}
	if listing.ProviderID == touristID {
		return nil, errors.ValidationError("cannot open a conversation with yourself")
	}

	return s.GetOrCreate(ctx, listingID, touristID, listing.ProviderID)
}

// ListForParticipant returns the caller's conversations, most recently
// active first, enriched with both participant views and the listing title.
func (s *Service) ListForParticipant(ctx context.Context, participantID uuid.UUID, role domain.Role) ([]*domain.ConversationDetails, error) {
	conversations, err := s.conversationRepo.ListByParticipant(ctx, role, participantID, s.config.InboxLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	details := make([]*domain.ConversationDetails, 0, len(conversations))
	for _, conversation := range conversations {
		tourist, err := s.participants.Resolve(ctx, conversation.TouristID, domain.Tourist)
		if err != nil {
			return nil, err
		}
		provider, err := s.participants.Resolve(ctx, conversation.ProviderID, domain.Provider)
		if err != nil {
			return nil, err
		}

		details = append(details, &domain.ConversationDetails{
			Conversation: *conversation,
			Tourist:      tourist,
			Provider:     provider,
			ListingTitle: s.listingTitle(ctx, conversation.ListingID),
		})
	}

	return details, nil
}

func (s *Service) listingTitle(ctx context.Context, listingID uuid.UUID) string {
	listing, err := s.listingRepo.GetListing(ctx, listingID)
	if err != nil {
		s.logger.Warn("Failed to resolve listing title",
			zap.String("listing_id", listingID.String()),
			zap.Error(err))
		return domain.UnknownListing
	}
	if listing == nil || listing.Title == "" {
		return domain.UnknownListing
	}
	return listing.Title
}

// MarkAsRead zeroes the caller's own unread counter. Idempotent.
func (s *Service) MarkAsRead(ctx context.Context, conversationID uuid.UUID, role domain.Role) error {
	if err := s.conversationRepo.ResetUnread(ctx, conversationID, role); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// RecordNewMessage stores the truncated preview, bumps last-message-at and
// increments the receiver's unread counter.
func (s *Service) RecordNewMessage(ctx context.Context, conversationID uuid.UUID, previewText string, receiver domain.Role) error {
	preview := domain.TruncatePreview(previewText, s.config.PreviewLength)
	if err := s.conversationRepo.RecordMessage(ctx, conversationID, preview, s.now(), receiver); err != nil {
		return fmt.Errorf("failed to record new message: %w", err)
	}
	return nil
}
