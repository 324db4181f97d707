// Package session drives one participant's live view of a conversation:
// initial load, realtime merge, optimistic sends and debounced read receipts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/realtime"
	"tourly-backend/internal/service/chat"
	"tourly-backend/pkg/errors"
	"tourly-backend/pkg/logger"
)

// State is the controller's lifecycle state
type State string

const (
	StateLoading  State = "loading"
	StateNotFound State = "not_found"
	StateError    State = "error"
	StateReady    State = "ready"
)

const localPrefix = "local-"

// Entry is one line of the session's message list. Pending entries are
// optimistic placeholders awaiting server confirmation.
type Entry struct {
	ID      string         `json:"id"`
	Message domain.Message `json:"message"`
	Pending bool           `json:"pending"`
}

// Snapshot is a consistent copy of the controller state
type Snapshot struct {
	State          State   `json:"state"`
	Err            error   `json:"-"`
	Messages       []Entry `json:"messages"`
	Total          int     `json:"total"`
	HasEarlier     bool    `json:"has_earlier"`
	LoadingEarlier bool    `json:"loading_earlier"`
}

// ConversationReader fetches conversations; nil means absent
type ConversationReader interface {
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
}

// MessageStore is the message accessor the session talks to
type MessageStore interface {
	GetMessagePage(ctx context.Context, conversationID uuid.UUID, limit, offset int) (*domain.MessagePage, error)
	GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) (*domain.MessagePage, error)
	SendMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.Message, error)
	AcknowledgeRead(ctx context.Context, conversationID, readerID uuid.UUID) error
}

// Timer is a cancellable pending callback
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and schedules delayed callbacks
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Dependencies are the collaborators a controller needs
type Dependencies struct {
	Conversations ConversationReader
	Messages      MessageStore
	Realtime      realtime.Subscriber
	Logger        *zap.Logger
}

// Config identifies the session and tunes its timing
type Config struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	PageSize       int
	ReadDebounce   time.Duration
	ReadTimeout    time.Duration
}

// Option configures a Controller
type Option func(*Controller)

// WithObserver registers a callback invoked with every state change
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithScrollToLatest registers a callback invoked when the view should jump
// to the newest message
func WithScrollToLatest(fn func()) Option {
	return func(c *Controller) { c.scroll = fn }
}

// WithClock overrides the timer source
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller is the chat session state machine. All methods are safe for
// concurrent use; observer callbacks run outside the internal lock.
type Controller struct {
	deps     Dependencies
	config   Config
	logger   *zap.Logger
	clock    Clock
	observer func(Snapshot)
	scroll   func()

	mu             sync.Mutex
	state          State
	err            error
	entries        []Entry
	total          int
	oldestOffset   int
	loadingEarlier bool
	generation     uint64
	closed         bool
	unsubscribe    func()
	buffered       []realtime.Event
	readTimer      Timer
	receipts       sync.WaitGroup
}

// New creates a controller in the loading state. Call Load to start it.
func New(deps Dependencies, cfg Config, opts ...Option) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.ReadDebounce <= 0 {
		cfg.ReadDebounce = 500 * time.Millisecond
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}

	c := &Controller{
		deps:   deps,
		config: cfg,
		logger: logger.OrNop(deps.Logger).With(
			zap.String("conversation_id", cfg.ConversationID.String()),
			zap.String("user_id", cfg.UserID.String()),
		),
		clock: realClock{},
		state: StateLoading,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return Snapshot{
		State:          c.state,
		Err:            c.err,
		Messages:       entries,
		Total:          c.total,
		HasEarlier:     c.oldestOffset > 0,
		LoadingEarlier: c.loadingEarlier,
	}
}

func (c *Controller) notify(s Snapshot) {
	if c.observer != nil {
		c.observer(s)
	}
}

func (c *Controller) scrollToLatest() {
	if c.scroll != nil {
		c.scroll()
	}
}

// Load runs the initial load: conversation, then the latest page, then a
// read acknowledgement. Missing and inaccessible conversations both end in
// StateNotFound.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	teardown := c.resetLocked()
	c.state = StateLoading
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	c.notify(snap)

	conversation, err := c.deps.Conversations.GetByID(ctx, c.config.ConversationID)
	if !c.current(gen) {
		return
	}
	if err != nil {
		c.fail(gen, StateError, err)
		return
	}
	if conversation == nil || !conversation.HasParticipant(c.config.UserID) {
		c.fail(gen, StateNotFound, errors.ConversationNotFoundError())
		return
	}

	unsubscribe, err := c.deps.Realtime.Subscribe(ctx, c.config.ConversationID, realtime.Handlers{
		OnCreate: func(m *domain.Message) { c.handle(gen, realtime.Created(m)) },
		OnUpdate: func(m *domain.Message) { c.handle(gen, realtime.Updated(m)) },
	})
	if err != nil {
		c.fail(gen, StateError, err)
		return
	}
	if !c.adoptSubscription(gen, unsubscribe) {
		return
	}

	page, err := c.deps.Messages.GetLatestMessages(ctx, c.config.ConversationID, c.config.PageSize)
	if !c.current(gen) {
		return
	}
	if err != nil {
		c.fail(gen, StateError, err)
		return
	}

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.entries = make([]Entry, 0, len(page.Messages))
	for _, m := range page.Messages {
		c.entries = append(c.entries, confirmed(m))
	}
	c.total = page.Total
	c.oldestOffset = page.Offset
	c.state = StateReady
	c.err = nil
	buffered := c.buffered
	c.buffered = nil
	for _, event := range buffered {
		c.applyLocked(event)
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)

	if err := c.deps.Messages.AcknowledgeRead(ctx, c.config.ConversationID, c.config.UserID); err != nil {
		c.logger.Warn("Failed to mark conversation read", zap.Error(err))
	}
	c.scrollToLatest()
}

// Retry re-enters loading from a terminal failure state
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateNotFound && state != StateError {
		return errors.ValidationError("Nothing to retry")
	}
	c.Load(ctx)
	return nil
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && !c.closed
}

// adoptSubscription stores unsubscribe for gen, or releases it when gen is stale
func (c *Controller) adoptSubscription(gen uint64, unsubscribe func()) bool {
	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		unsubscribe()
		return false
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return true
}

func (c *Controller) fail(gen uint64, state State, err error) {
	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return
	}
	teardown := c.resetLocked()
	c.state = state
	c.err = err
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	if state == StateError {
		c.logger.Warn("Chat session failed to load", zap.Error(err))
	}
	c.notify(snap)
}

// resetLocked clears per-load state and returns the unsubscribe to call after unlocking
func (c *Controller) resetLocked() func() {
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	c.entries = nil
	c.total = 0
	c.oldestOffset = 0
	c.loadingEarlier = false
	c.buffered = nil
	c.err = nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	return unsubscribe
}

// handle merges a realtime event. Events that arrive before the session is
// ready are buffered and replayed once the first page is in place.
func (c *Controller) handle(gen uint64, event realtime.Event) {
	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return
	}
	if c.state != StateReady {
		if c.state == StateLoading {
			c.buffered = append(c.buffered, event)
		}
		c.mu.Unlock()
		return
	}

	changed, incoming := c.applyLocked(event)
	if incoming {
		c.scheduleReadLocked(gen)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
		if event.Type == realtime.TypeMessageCreated {
			c.scrollToLatest()
		}
	}
}

// applyLocked reports whether the list changed and whether the event was a
// new message from the other participant.
func (c *Controller) applyLocked(event realtime.Event) (changed, incoming bool) {
	message := event.Message
	if message == nil || message.ConversationID != c.config.ConversationID {
		return false, false
	}

	switch event.Type {
	case realtime.TypeMessageCreated:
		if c.indexOf(message.ID.String()) >= 0 {
			return false, false
		}
		if i := c.matchPending(message); i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
		c.entries = append(c.entries, confirmed(message))
		c.total++
		return true, message.SenderID != c.config.UserID

	case realtime.TypeMessageUpdated:
		i := c.indexOf(message.ID.String())
		if i < 0 {
			return false, false
		}
		c.entries[i] = confirmed(message)
		return true, false
	}

	return false, false
}

// matchPending finds the placeholder a confirmed message settles. The client
// reference is authoritative when both sides carry one; otherwise the first
// placeholder with the same sender and text is taken.
func (c *Controller) matchPending(message *domain.Message) int {
	if message.SenderID != c.config.UserID {
		return -1
	}
	for i, e := range c.entries {
		if !e.Pending {
			continue
		}
		if message.ClientRef != "" {
			if e.ID == message.ClientRef {
				return i
			}
			continue
		}
		if e.Message.Text == message.Text {
			return i
		}
	}
	return -1
}

func (c *Controller) indexOf(id string) int {
	for i, e := range c.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// scheduleReadLocked restarts the read-receipt debounce timer
func (c *Controller) scheduleReadLocked(gen uint64) {
	if c.readTimer != nil {
		c.readTimer.Stop()
	}
	c.readTimer = c.clock.AfterFunc(c.config.ReadDebounce, func() {
		c.mu.Lock()
		if c.generation != gen || c.closed {
			c.mu.Unlock()
			return
		}
		c.readTimer = nil
		c.receipts.Add(1)
		c.mu.Unlock()
		defer c.receipts.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.ReadTimeout)
		defer cancel()
		if err := c.deps.Messages.AcknowledgeRead(ctx, c.config.ConversationID, c.config.UserID); err != nil {
			c.logger.Warn("Failed to mark conversation read", zap.Error(err))
		}
	})
}

// LoadEarlier prepends the next older page. It is a no-op when everything is
// loaded or a load is already in flight.
func (c *Controller) LoadEarlier(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || c.loadingEarlier || c.oldestOffset <= 0 {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	offset := c.oldestOffset - c.config.PageSize
	if offset < 0 {
		offset = 0
	}
	limit := c.oldestOffset - offset
	c.loadingEarlier = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)

	page, err := c.deps.Messages.GetMessagePage(ctx, c.config.ConversationID, limit, offset)

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.loadingEarlier = false
	if err != nil {
		snap = c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	older := make([]Entry, 0, len(page.Messages)+len(c.entries))
	for _, m := range page.Messages {
		if c.indexOf(m.ID.String()) >= 0 {
			continue
		}
		older = append(older, confirmed(m))
	}
	c.entries = append(older, c.entries...)
	c.oldestOffset = offset
	if page.Total > c.total {
		c.total = page.Total
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Send appends an optimistic entry, stores the message and settles the entry
// with the confirmed message. On failure the entry is removed and the error
// returned.
func (c *Controller) Send(ctx context.Context, text string) (*domain.Message, error) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return nil, errors.SessionNotReadyError()
	}
	gen := c.generation
	localID := localPrefix + uuid.NewString()
	c.entries = append(c.entries, Entry{
		ID: localID,
		Message: domain.Message{
			ConversationID: c.config.ConversationID,
			SenderID:       c.config.UserID,
			Text:           domain.NormalizeText(text),
			ClientRef:      localID,
			CreatedAt:      c.clock.Now().UTC(),
		},
		Pending: true,
	})
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	c.scrollToLatest()

	message, err := c.deps.Messages.SendMessage(ctx, &chat.SendMessageInput{
		ConversationID: c.config.ConversationID,
		SenderID:       c.config.UserID,
		Text:           text,
		ClientRef:      localID,
	})

	c.mu.Lock()
	if c.generation != gen || c.closed {
		c.mu.Unlock()
		return message, err
	}
	i := c.indexOf(localID)
	switch {
	case err != nil:
		if i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
	case c.indexOf(message.ID.String()) >= 0:
		// the realtime echo already settled it
		if i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
	case i >= 0:
		c.entries[i] = confirmed(message)
		c.total++
	default:
		c.entries = append(c.entries, confirmed(message))
		c.total++
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return message, err
}

// Close tears the session down: the realtime subscription is released, any
// pending read receipt is cancelled and one already in flight is awaited.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.buffered = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.receipts.Wait()
}

func confirmed(m *domain.Message) Entry {
	return Entry{ID: m.ID.String(), Message: *m}
}
