package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tourly-backend/internal/domain"
	"tourly-backend/internal/realtime"
	"tourly-backend/internal/service/chat"
	apperrors "tourly-backend/pkg/errors"
)

type MockConversationReader struct {
	mock.Mock
}

func (m *MockConversationReader) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

// fakeStore keeps messages for one conversation in memory
type fakeStore struct {
	mu       sync.Mutex
	messages []*domain.Message
	latest   error
	sendErr  error
	acks     int
	// onSend runs before SendMessage returns, after the message is stored
	onSend func(*domain.Message)
	// onAck runs inside AcknowledgeRead after the call is counted
	onAck func()
}

func (s *fakeStore) GetMessagePage(_ context.Context, _ uuid.UUID, limit, offset int) (*domain.MessagePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := offset + limit
	if end > len(s.messages) {
		end = len(s.messages)
	}
	page := make([]*domain.Message, 0)
	for _, m := range s.messages[offset:end] {
		copied := *m
		page = append(page, &copied)
	}
	return &domain.MessagePage{Messages: page, Total: len(s.messages), Offset: offset}, nil
}

func (s *fakeStore) GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) (*domain.MessagePage, error) {
	s.mu.Lock()
	err := s.latest
	offset := len(s.messages) - limit
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return s.GetMessagePage(ctx, conversationID, limit, offset)
}

func (s *fakeStore) SendMessage(_ context.Context, input *chat.SendMessageInput) (*domain.Message, error) {
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return nil, err
	}
	message := &domain.Message{
		ID:             uuid.New(),
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Text:           domain.NormalizeText(input.Text),
		ClientRef:      input.ClientRef,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages = append(s.messages, message)
	onSend := s.onSend
	s.mu.Unlock()

	if onSend != nil {
		copied := *message
		onSend(&copied)
	}
	return message, nil
}

func (s *fakeStore) AcknowledgeRead(context.Context, uuid.UUID, uuid.UUID) error {
	s.mu.Lock()
	s.acks++
	onAck := s.onAck
	s.mu.Unlock()

	if onAck != nil {
		onAck()
	}
	return nil
}

func (s *fakeStore) ackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks
}

func (s *fakeStore) seed(conversationID, senderID uuid.UUID, texts ...string) []*domain.Message {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	out := make([]*domain.Message, 0, len(texts))
	for i, text := range texts {
		m := &domain.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Text:           text,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		s.messages = append(s.messages, m)
		out = append(out, m)
	}
	return out
}

// fakeSubscriber captures the handlers of the latest subscription
type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     realtime.Handlers
	subscribed   int
	unsubscribed int
	err          error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, _ uuid.UUID, handlers realtime.Handlers) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.handlers = handlers
	f.subscribed++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed++
	}, nil
}

func (f *fakeSubscriber) create(m *domain.Message) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	copied := *m
	h.OnCreate(&copied)
}

func (f *fakeSubscriber) update(m *domain.Message) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	copied := *m
	h.OnUpdate(&copied)
}

// fakeClock fires timers only when told to
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that was not stopped
func (c *fakeClock) fire() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	fired := 0
	for _, t := range timers {
		if !t.stopped {
			t.stopped = true
			t.fn()
			fired++
		}
	}
	return fired
}

type fixture struct {
	conversation *domain.Conversation
	reader       *MockConversationReader
	store        *fakeStore
	subscriber   *fakeSubscriber
	clock        *fakeClock
	controller   *Controller
	scrolls      int
	snapshots    []Snapshot
}

func newFixture(t *testing.T, userID *uuid.UUID) *fixture {
	conversation := &domain.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TouristID:  uuid.New(),
		ProviderID: uuid.New(),
	}
	user := conversation.TouristID
	if userID != nil {
		user = *userID
	}

	f := &fixture{
		conversation: conversation,
		reader:       new(MockConversationReader),
		store:        &fakeStore{},
		subscriber:   &fakeSubscriber{},
		clock:        &fakeClock{now: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)},
	}
	f.controller = New(Dependencies{
		Conversations: f.reader,
		Messages:      f.store,
		Realtime:      f.subscriber,
		Logger:        zaptest.NewLogger(t),
	}, Config{
		ConversationID: conversation.ID,
		UserID:         user,
		PageSize:       2,
	},
		WithClock(f.clock),
		WithScrollToLatest(func() { f.scrolls++ }),
		WithObserver(func(s Snapshot) { f.snapshots = append(f.snapshots, s) }),
	)
	return f
}

func (f *fixture) load(t *testing.T) {
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)
	f.controller.Load(context.Background())
	require.Equal(t, StateReady, f.controller.Snapshot().State)
}

func (f *fixture) incoming(text string) *domain.Message {
	return &domain.Message{
		ID:             uuid.New(),
		ConversationID: f.conversation.ID,
		SenderID:       f.conversation.ProviderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
}

func texts(s Snapshot) []string {
	out := make([]string, 0, len(s.Messages))
	for _, e := range s.Messages {
		out = append(out, e.Message.Text)
	}
	return out
}

func TestLoad_Ready(t *testing.T) {
	f := newFixture(t, nil)
	f.store.seed(f.conversation.ID, f.conversation.ProviderID, "one", "two", "three")

	f.load(t)

	snap := f.controller.Snapshot()
	assert.Equal(t, []string{"two", "three"}, texts(snap))
	assert.Equal(t, 3, snap.Total)
	assert.True(t, snap.HasEarlier)
	assert.Equal(t, 1, f.store.ackCount())
	assert.Equal(t, 1, f.scrolls)
	assert.Equal(t, 1, f.subscriber.subscribed)
	assert.Equal(t, StateLoading, f.snapshots[0].State)
}

func TestLoad_MissingConversation(t *testing.T) {
	f := newFixture(t, nil)
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(nil, nil)

	f.controller.Load(context.Background())

	snap := f.controller.Snapshot()
	assert.Equal(t, StateNotFound, snap.State)
	assert.True(t, apperrors.HasCode(snap.Err, apperrors.ErrCodeConversationNotFound))
	assert.Equal(t, 0, f.subscriber.subscribed)
	assert.Equal(t, 0, f.store.ackCount())
}

func TestLoad_NonParticipantLooksMissing(t *testing.T) {
	outsider := uuid.New()
	f := newFixture(t, &outsider)
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)

	f.controller.Load(context.Background())

	snap := f.controller.Snapshot()
	assert.Equal(t, StateNotFound, snap.State)
	assert.True(t, apperrors.HasCode(snap.Err, apperrors.ErrCodeConversationNotFound))
	assert.Equal(t, 0, f.subscriber.subscribed)
}

func TestLoad_ErrorThenRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(nil, errors.New("connection reset")).Once()
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)

	f.controller.Load(context.Background())
	assert.Equal(t, StateError, f.controller.Snapshot().State)

	require.NoError(t, f.controller.Retry(context.Background()))
	assert.Equal(t, StateReady, f.controller.Snapshot().State)
	assert.Nil(t, f.controller.Snapshot().Err)
}

func TestLoad_MessageFailureReleasesSubscription(t *testing.T) {
	f := newFixture(t, nil)
	f.store.latest = errors.New("cassandra unavailable")
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)

	f.controller.Load(context.Background())

	assert.Equal(t, StateError, f.controller.Snapshot().State)
	assert.Equal(t, 1, f.subscriber.subscribed)
	assert.Equal(t, 1, f.subscriber.unsubscribed)
}

func TestLoad_SubscribeFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.subscriber.err = errors.New("redis degraded")
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)

	f.controller.Load(context.Background())

	assert.Equal(t, StateError, f.controller.Snapshot().State)
}

func TestRetry_OnlyFromFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	err := f.controller.Retry(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestRealtime_DuplicateCreateIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	m := f.incoming("hello")
	f.subscriber.create(m)
	f.subscriber.create(m)

	snap := f.controller.Snapshot()
	assert.Equal(t, []string{"hello"}, texts(snap))
	assert.Equal(t, 1, snap.Total)
}

func TestRealtime_OtherConversationIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	m := f.incoming("elsewhere")
	m.ConversationID = uuid.New()
	f.subscriber.create(m)

	assert.Empty(t, f.controller.Snapshot().Messages)
}

func TestRealtime_UpdateReplacesByID(t *testing.T) {
	f := newFixture(t, nil)
	seeded := f.store.seed(f.conversation.ID, f.conversation.ProviderID, "hi")
	f.load(t)

	updated := *seeded[0]
	updated.IsRead = true
	f.subscriber.update(&updated)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.True(t, snap.Messages[0].Message.IsRead)

	f.subscriber.update(f.incoming("unknown"))
	assert.Len(t, f.controller.Snapshot().Messages, 1)
}

func TestRealtime_ReadReceiptDebounced(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)
	require.Equal(t, 1, f.store.ackCount())

	f.subscriber.create(f.incoming("one"))
	f.subscriber.create(f.incoming("two"))
	f.subscriber.create(f.incoming("three"))

	assert.Equal(t, 1, f.clock.fire())
	assert.Equal(t, 2, f.store.ackCount())
}

func TestRealtime_OwnMessagesDoNotScheduleReceipt(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	own := f.incoming("from me elsewhere")
	own.SenderID = f.conversation.TouristID
	f.subscriber.create(own)

	assert.Equal(t, 0, f.clock.fire())
	assert.Equal(t, 1, f.store.ackCount())
}

func TestRealtime_EventsBeforeReadyAreBuffered(t *testing.T) {
	f := newFixture(t, nil)
	early := f.incoming("early")
	f.reader.On("GetByID", mock.Anything, f.conversation.ID).Return(f.conversation, nil)

	// the event lands between subscribing and reading the first page
	f.controller.deps.Messages = &latestHook{
		fakeStore: f.store,
		before:    func() { f.subscriber.create(early) },
	}

	f.controller.Load(context.Background())

	snap := f.controller.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []string{"early"}, texts(snap))
	assert.Equal(t, 1, snap.Total)
}

type latestHook struct {
	*fakeStore
	before func()
}

func (h *latestHook) GetLatestMessages(ctx context.Context, conversationID uuid.UUID, limit int) (*domain.MessagePage, error) {
	h.before()
	return h.fakeStore.GetLatestMessages(ctx, conversationID, limit)
}

func TestSend_ConfirmsOptimisticEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	var pending Snapshot
	f.controller.observer = func(s Snapshot) {
		if len(s.Messages) == 1 && s.Messages[0].Pending {
			pending = s
		}
	}

	message, err := f.controller.Send(context.Background(), "  Hi  ")
	require.NoError(t, err)

	require.Len(t, pending.Messages, 1)
	assert.Equal(t, "Hi", pending.Messages[0].Message.Text)
	assert.Equal(t, f.clock.Now(), pending.Messages[0].Message.CreatedAt)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.False(t, snap.Messages[0].Pending)
	assert.Equal(t, message.ID.String(), snap.Messages[0].ID)
	assert.Equal(t, 1, snap.Total)

	// the realtime echo arriving afterwards is a duplicate
	f.subscriber.create(message)
	assert.Len(t, f.controller.Snapshot().Messages, 1)
	assert.Equal(t, 1, f.controller.Snapshot().Total)
}

func TestSend_EchoBeforeResponseByClientRef(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)
	f.store.onSend = func(m *domain.Message) { f.subscriber.create(m) }

	message, err := f.controller.Send(context.Background(), "Hi")
	require.NoError(t, err)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.False(t, snap.Messages[0].Pending)
	assert.Equal(t, message.ID.String(), snap.Messages[0].ID)
	assert.Equal(t, 1, snap.Total)
}

func TestSend_IdenticalTextsSettleTheirOwnPlaceholders(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	f.controller.mu.Lock()
	f.controller.entries = append(f.controller.entries,
		Entry{ID: "local-a", Message: domain.Message{SenderID: f.conversation.TouristID, Text: "Hi", ClientRef: "local-a"}, Pending: true},
		Entry{ID: "local-b", Message: domain.Message{SenderID: f.conversation.TouristID, Text: "Hi", ClientRef: "local-b"}, Pending: true},
	)
	f.controller.mu.Unlock()

	echo := &domain.Message{
		ID:             uuid.New(),
		ConversationID: f.conversation.ID,
		SenderID:       f.conversation.TouristID,
		Text:           "Hi",
		ClientRef:      "local-b",
	}
	f.subscriber.create(echo)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "local-a", snap.Messages[0].ID)
	assert.True(t, snap.Messages[0].Pending)
	assert.Equal(t, echo.ID.String(), snap.Messages[1].ID)
}

func TestSend_EchoWithoutClientRefMatchesText(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	f.controller.mu.Lock()
	f.controller.entries = append(f.controller.entries,
		Entry{ID: "local-a", Message: domain.Message{SenderID: f.conversation.TouristID, Text: "Hi", ClientRef: "local-a"}, Pending: true},
	)
	f.controller.mu.Unlock()

	echo := &domain.Message{
		ID:             uuid.New(),
		ConversationID: f.conversation.ID,
		SenderID:       f.conversation.TouristID,
		Text:           "Hi",
	}
	f.subscriber.create(echo)

	snap := f.controller.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.False(t, snap.Messages[0].Pending)
	assert.Equal(t, echo.ID.String(), snap.Messages[0].ID)
}

func TestSend_FailureRemovesOptimisticEntry(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)
	f.store.sendErr = apperrors.ValidationError("Message cannot be empty")

	_, err := f.controller.Send(context.Background(), "   ")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	snap := f.controller.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, 0, snap.Total)
}

func TestSend_NotReady(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.controller.Send(context.Background(), "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSessionNotReady))
}

func TestLoadEarlier_PrependsOlderPage(t *testing.T) {
	f := newFixture(t, nil)
	f.store.seed(f.conversation.ID, f.conversation.ProviderID, "m1", "m2", "m3", "m4", "m5")
	f.load(t)
	assert.Equal(t, []string{"m4", "m5"}, texts(f.controller.Snapshot()))

	require.NoError(t, f.controller.LoadEarlier(context.Background()))
	assert.Equal(t, []string{"m2", "m3", "m4", "m5"}, texts(f.controller.Snapshot()))
	assert.True(t, f.controller.Snapshot().HasEarlier)

	require.NoError(t, f.controller.LoadEarlier(context.Background()))
	snap := f.controller.Snapshot()
	assert.Equal(t, []string{"m1", "m2", "m3", "m4", "m5"}, texts(snap))
	assert.False(t, snap.HasEarlier)

	// everything loaded
	require.NoError(t, f.controller.LoadEarlier(context.Background()))
	assert.Len(t, f.controller.Snapshot().Messages, 5)
}

func TestLoadEarlier_DeduplicatesByID(t *testing.T) {
	f := newFixture(t, nil)
	seeded := f.store.seed(f.conversation.ID, f.conversation.ProviderID, "m1", "m2", "m3")
	f.load(t)

	// m1 already arrived through realtime
	f.controller.mu.Lock()
	f.controller.entries = append([]Entry{confirmed(seeded[0])}, f.controller.entries...)
	f.controller.mu.Unlock()

	require.NoError(t, f.controller.LoadEarlier(context.Background()))
	assert.Equal(t, []string{"m1", "m2", "m3"}, texts(f.controller.Snapshot()))
}

func TestClose_StopsTimerAndUnsubscribes(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	f.subscriber.create(f.incoming("hello"))
	f.controller.Close()
	f.controller.Close()

	assert.Equal(t, 0, f.clock.fire())
	assert.Equal(t, 1, f.store.ackCount())
	assert.Equal(t, 1, f.subscriber.unsubscribed)

	// late events are dropped
	f.subscriber.create(f.incoming("late"))
	assert.Equal(t, []string{"hello"}, texts(f.controller.Snapshot()))
}

func TestClose_WaitsForInFlightReceipt(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.store.mu.Lock()
	f.store.onAck = func() {
		close(started)
		<-release
	}
	f.store.mu.Unlock()

	f.subscriber.create(f.incoming("hello"))
	go f.clock.fire()
	<-started

	closed := make(chan struct{})
	go func() {
		f.controller.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a read receipt was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.Eventually(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestReload_ReleasesPreviousSubscription(t *testing.T) {
	f := newFixture(t, nil)
	f.load(t)

	f.controller.Load(context.Background())

	assert.Equal(t, 2, f.subscriber.subscribed)
	assert.Equal(t, 1, f.subscriber.unsubscribed)
	assert.Equal(t, StateReady, f.controller.Snapshot().State)
}
