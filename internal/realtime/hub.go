package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/pkg/logger"
)

// Hub shares one upstream subscription per conversation between all local
// subscribers. It implements Subscriber.
type Hub struct {
	upstream Subscriber
	logger   *zap.Logger

	mu            sync.Mutex
	conversations map[uuid.UUID]*topic
	nextID        uint64
}

type topic struct {
	ready       chan struct{}
	err         error
	handlers    map[uint64]Handlers
	unsubscribe func()
}

// NewHub creates a hub on top of an upstream subscriber
func NewHub(upstream Subscriber, log *zap.Logger) *Hub {
	return &Hub{
		upstream:      upstream,
		logger:        logger.OrNop(log),
		conversations: make(map[uuid.UUID]*topic),
	}
}

// Subscribe registers handlers for a conversation, opening the upstream
// subscription for the first local subscriber.
func (h *Hub) Subscribe(ctx context.Context, conversationID uuid.UUID, handlers Handlers) (func(), error) {
	h.mu.Lock()
	t, exists := h.conversations[conversationID]
	if !exists {
		t = &topic{ready: make(chan struct{}), handlers: make(map[uint64]Handlers)}
		h.conversations[conversationID] = t
	}
	h.nextID++
	id := h.nextID
	t.handlers[id] = handlers
	h.mu.Unlock()

	if !exists {
		unsubscribe, err := h.upstream.Subscribe(ctx, conversationID, Handlers{
			OnCreate: func(m *domain.Message) { h.broadcast(conversationID, Created(m)) },
			OnUpdate: func(m *domain.Message) { h.broadcast(conversationID, Updated(m)) },
		})
		h.mu.Lock()
		t.err = err
		t.unsubscribe = unsubscribe
		if err != nil {
			delete(h.conversations, conversationID)
		}
		h.mu.Unlock()
		close(t.ready)
	}

	select {
	case <-t.ready:
	case <-ctx.Done():
		h.release(conversationID, t, id)
		return nil, ctx.Err()
	}

	if t.err != nil {
		return nil, t.err
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.release(conversationID, t, id) })
	}, nil
}

func (h *Hub) release(conversationID uuid.UUID, t *topic, id uint64) {
	h.mu.Lock()
	delete(t.handlers, id)
	var unsubscribe func()
	if len(t.handlers) == 0 && h.conversations[conversationID] == t {
		select {
		case <-t.ready:
			delete(h.conversations, conversationID)
			unsubscribe = t.unsubscribe
		default:
			// still connecting; the opener owns cleanup
		}
	}
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		h.logger.Debug("Closed realtime subscription",
			zap.String("conversation_id", conversationID.String()))
	}
}

func (h *Hub) broadcast(conversationID uuid.UUID, event Event) {
	h.mu.Lock()
	t, ok := h.conversations[conversationID]
	if !ok {
		h.mu.Unlock()
		return
	}
	handlers := make([]Handlers, 0, len(t.handlers))
	for _, hs := range t.handlers {
		handlers = append(handlers, hs)
	}
	h.mu.Unlock()

	for _, hs := range handlers {
		hs.Dispatch(event)
	}
}

// Conversations returns the number of conversations with an open upstream subscription
func (h *Hub) Conversations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conversations)
}
