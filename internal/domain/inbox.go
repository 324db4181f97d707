package domain

import (
	"time"

	"github.com/google/uuid"
)

// InboxItem is one row of a participant's conversation list
type InboxItem struct {
	ID                     uuid.UUID `json:"id"`
	OtherParticipantName   string    `json:"other_participant_name"`
	OtherParticipantAvatar string    `json:"other_participant_avatar"`
	LastMessage            string    `json:"last_message"`
	LastMessageAt          time.Time `json:"last_message_at"`
	UnreadCount            int       `json:"unread_count"`
	ListingTitle           string    `json:"listing_title"`
}
