package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourly-backend/internal/domain"
)

func testMessage() *domain.Message {
	return &domain.Message{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       uuid.New(),
		Text:           "Is the boat tour still available?",
		ClientRef:      "local-1",
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c1c7e-94f5-4a5e-8d6f-1b0c53a1e111")
	assert.Equal(t, "chat:6f1c1c7e-94f5-4a5e-8d6f-1b0c53a1e111", Channel(id))
}

func TestEncodeDecode(t *testing.T) {
	msg := testMessage()

	payload, err := Encode(Created(msg))
	require.NoError(t, err)

	event, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeMessageCreated, event.Type)
	assert.Equal(t, msg.ConversationID, event.ConversationID)
	assert.Equal(t, msg.ID, event.Message.ID)
	assert.Equal(t, "local-1", event.Message.ClientRef)
	assert.True(t, msg.CreatedAt.Equal(event.Message.CreatedAt))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "hello"},
		{"no message", `{"type":"message.created"}`},
		{"unknown type", `{"type":"message.deleted","message":{"id":"6f1c1c7e-94f5-4a5e-8d6f-1b0c53a1e111"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEncode_RequiresMessage(t *testing.T) {
	_, err := Encode(Event{Type: TypeMessageCreated})
	assert.Error(t, err)
}

func TestHandlers_Dispatch(t *testing.T) {
	var created, updated []*domain.Message
	h := Handlers{
		OnCreate: func(m *domain.Message) { created = append(created, m) },
		OnUpdate: func(m *domain.Message) { updated = append(updated, m) },
	}

	msg := testMessage()
	h.Dispatch(Created(msg))
	h.Dispatch(Updated(msg))
	h.Dispatch(Event{Type: "other", Message: msg})

	assert.Len(t, created, 1)
	assert.Len(t, updated, 1)

	// nil handlers are skipped
	Handlers{}.Dispatch(Created(msg))
}
