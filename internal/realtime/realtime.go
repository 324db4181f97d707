// Package realtime carries message change events between server instances
// and the clients watching a conversation.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tourly-backend/internal/domain"
)

// Event types
const (
	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
)

// Event is a change to a message row in one conversation
type Event struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *domain.Message `json:"message"`
}

// Created builds a message.created event
func Created(message *domain.Message) Event {
	return Event{Type: TypeMessageCreated, ConversationID: message.ConversationID, Message: message}
}

// Updated builds a message.updated event
func Updated(message *domain.Message) Event {
	return Event{Type: TypeMessageUpdated, ConversationID: message.ConversationID, Message: message}
}

// Handlers receive events for one subscription. Either may be nil.
type Handlers struct {
	OnCreate func(*domain.Message)
	OnUpdate func(*domain.Message)
}

// Publisher emits events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers events for a conversation until unsubscribe is called.
// Subscribe returns once the subscription is active.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID uuid.UUID, handlers Handlers) (func(), error)
}

// Broker is both sides of the realtime channel
type Broker interface {
	Publisher
	Subscriber
}

// Channel names the pub/sub channel of a conversation
func Channel(conversationID uuid.UUID) string {
	return fmt.Sprintf("chat:%s", conversationID)
}

// Encode serializes an event for the wire
func Encode(event Event) ([]byte, error) {
	if event.Message == nil {
		return nil, fmt.Errorf("event has no message")
	}
	return json.Marshal(event)
}

// Decode parses a wire payload and rejects unknown types
func Decode(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if event.Message == nil {
		return Event{}, fmt.Errorf("event has no message")
	}
	switch event.Type {
	case TypeMessageCreated, TypeMessageUpdated:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}

// Dispatch routes an event to the matching handler
func (h Handlers) Dispatch(event Event) {
	switch event.Type {
	case TypeMessageCreated:
		if h.OnCreate != nil {
			h.OnCreate(event.Message)
		}
	case TypeMessageUpdated:
		if h.OnUpdate != nil {
			h.OnUpdate(event.Message)
		}
	}
}
