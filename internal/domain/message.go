package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat line within a conversation.
// Maps to Cassandra messages table
type Message struct {
	ID             uuid.UUID `json:"id" cql:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id" cql:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id" cql:"sender_id"`
	Text           string    `json:"text" cql:"text"`
	IsRead         bool      `json:"is_read" cql:"is_read"`
	ClientRef      string    `json:"client_ref,omitempty" cql:"client_ref"` // Echoed for optimistic reconciliation
	CreatedAt      time.Time `json:"created_at" cql:"created_at"`
}

// MessageCreate represents data needed to send a message
type MessageCreate struct {
	Text      string `json:"text" binding:"required"`
	ClientRef string `json:"client_ref,omitempty" binding:"omitempty,max=64"`
}

// MessagePage is a window of messages, oldest first, with the conversation total
type MessagePage struct {
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
	Offset   int        `json:"offset"`
}
