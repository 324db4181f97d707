package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tourly-backend/internal/domain"
)

// EventMessageSent is emitted after a message has been persisted
const EventMessageSent = "message.sent"

// Publisher sends raw records
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// MessageSentEvent is the payload of a message.sent record
type MessageSentEvent struct {
	EventID        uuid.UUID `json:"event_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	ReceiverRole   string    `json:"receiver_role"`
	Preview        string    `json:"preview"`
}

// MessageEvents emits message lifecycle events keyed by conversation id so
// that one conversation's events stay ordered within a partition.
type MessageEvents struct {
	publisher     Publisher
	topic         string
	previewLength int
}

// NewMessageEvents creates the message event emitter
func NewMessageEvents(publisher Publisher, topic string, previewLength int) *MessageEvents {
	if previewLength <= 0 {
		previewLength = domain.PreviewLength
	}
	return &MessageEvents{publisher: publisher, topic: topic, previewLength: previewLength}
}

// MessageSent publishes a message.sent event
func (e *MessageEvents) MessageSent(ctx context.Context, message *domain.Message, receiver domain.Role) error {
	event := MessageSentEvent{
		EventID:        uuid.New(),
		OccurredAt:     message.CreatedAt,
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		SenderID:       message.SenderID,
		ReceiverRole:   receiver.String(),
		Preview:        domain.TruncatePreview(message.Text, e.previewLength),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", EventMessageSent, err)
	}

	headers := map[string]string{
		"event_type": EventMessageSent,
		"event_id":   event.EventID.String(),
	}

	if err := e.publisher.Publish(ctx, e.topic, message.ConversationID.String(), payload, headers); err != nil {
		return fmt.Errorf("failed to publish %s: %w", EventMessageSent, err)
	}
	return nil
}
