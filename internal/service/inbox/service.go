package inbox

import (
	"context"

	"github.com/google/uuid"

	"tourly-backend/internal/domain"
)

// ConversationLister lists enriched conversations for a participant
type ConversationLister interface {
	ListForParticipant(ctx context.Context, participantID uuid.UUID, role domain.Role) ([]*domain.ConversationDetails, error)
}

// Service builds inbox listings
type Service struct {
	conversations ConversationLister
}

// NewService creates a new inbox service
func NewService(conversations ConversationLister) *Service {
	return &Service{conversations: conversations}
}

// ListInbox returns the participant's inbox rows, most recently active first
func (s *Service) ListInbox(ctx context.Context, participantID uuid.UUID, role domain.Role) ([]domain.InboxItem, error) {
	details, err := s.conversations.ListForParticipant(ctx, participantID, role)
	if err != nil {
		return nil, err
	}

	items := make([]domain.InboxItem, 0, len(details))
	for _, d := range details {
		items = append(items, Project(d, participantID))
	}
	return items, nil
}
