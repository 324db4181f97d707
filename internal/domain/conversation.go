package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the unique (listing, tourist) thread with the listing's provider.
// Maps to CockroachDB conversations table
type Conversation struct {
	ID             uuid.UUID  `json:"id" db:"conversation_id"`
	ListingID      uuid.UUID  `json:"listing_id" db:"listing_id"`
	TouristID      uuid.UUID  `json:"tourist_id" db:"tourist_id"`
	ProviderID     uuid.UUID  `json:"provider_id" db:"provider_id"`
	LastMessage    *string    `json:"last_message,omitempty" db:"last_message"` // Truncated preview
	LastMessageAt  *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	TouristUnread  int        `json:"tourist_unread" db:"tourist_unread"`
	ProviderUnread int        `json:"provider_unread" db:"provider_unread"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// HasParticipant reports whether id is the tourist or the provider of c
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	_, ok := RoleOf(c, id)
	return ok
}

// ConversationDetails is a conversation enriched for inbox listing
type ConversationDetails struct {
	Conversation
	Tourist      ParticipantView `json:"tourist"`
	Provider     ParticipantView `json:"provider"`
	ListingTitle string          `json:"listing_title"`
}

// ConversationCreate represents data to open a conversation from a listing page
type ConversationCreate struct {
	ListingID  string `json:"listing_id" binding:"required,uuid"`
	ProviderID string `json:"provider_id" binding:"required,uuid"`
}
