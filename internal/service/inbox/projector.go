package inbox

import (
	"github.com/google/uuid"

	"tourly-backend/internal/domain"
)

// Project flattens a conversation into the row currentUserID sees in their
// inbox. A caller matching the tourist side sees the provider, anyone else
// sees the tourist.
func Project(details *domain.ConversationDetails, currentUserID uuid.UUID) domain.InboxItem {
	callerRole, other := domain.Provider, details.Tourist
	if details.TouristID == currentUserID {
		callerRole, other = domain.Tourist, details.Provider
	}

	name := other.Name
	if name == "" {
		name = domain.UnknownName
	}

	lastMessage := ""
	if details.LastMessage != nil {
		lastMessage = *details.LastMessage
	}

	lastMessageAt := details.CreatedAt
	if details.LastMessageAt != nil {
		lastMessageAt = *details.LastMessageAt
	}

	return domain.InboxItem{
		ID:                     details.ID,
		OtherParticipantName:   name,
		OtherParticipantAvatar: other.AvatarRef,
		LastMessage:            lastMessage,
		LastMessageAt:          lastMessageAt,
		UnreadCount:            callerRole.UnreadCount(&details.Conversation),
		ListingTitle:           details.ListingTitle,
	}
}
