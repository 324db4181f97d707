package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"tourly-backend/internal/domain"
	"tourly-backend/pkg/metrics"
)

// MessageRepository handles message storage in Cassandra.
// Partition key is conversation_id; rows cluster by (created_at, message_id)
// ascending so a partition scan yields oldest-first order.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a new message
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}

	query := `
		INSERT INTO messages (
			conversation_id, created_at, message_id, sender_id, text, is_read, client_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err := r.session.Query(query,
		gocql.UUID(message.ConversationID),
		message.CreatedAt,
		gocql.UUID(message.ID),
		gocql.UUID(message.SenderID),
		message.Text,
		message.IsRead,
		message.ClientRef,
	).WithContext(ctx).Exec()
	metrics.ObserveCassandraQuery("insert", "messages", start, err)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetPage returns up to limit messages starting at offset, oldest first.
// Cassandra has no OFFSET, so the leading rows are read and skipped.
func (r *MessageRepository) GetPage(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT conversation_id, created_at, message_id, sender_id, text, is_read, client_ref
		FROM messages
		WHERE conversation_id = ?
		LIMIT ?
	`

	start := time.Now()
	iter := r.session.Query(query, gocql.UUID(conversationID), offset+limit).
		WithContext(ctx).
		PageSize(limit).
		Iter()

	messages := make([]*domain.Message, 0, limit)
	var (
		convID, msgID, senderID gocql.UUID
		skipped                 int
	)

	for {
		message := &domain.Message{}
		if !iter.Scan(
			&convID,
			&message.CreatedAt,
			&msgID,
			&senderID,
			&message.Text,
			&message.IsRead,
			&message.ClientRef,
		) {
			break
		}
		if skipped < offset {
			skipped++
			continue
		}
		message.ConversationID = uuid.UUID(convID)
		message.ID = uuid.UUID(msgID)
		message.SenderID = uuid.UUID(senderID)
		messages = append(messages, message)
	}

	err := iter.Close()
	metrics.ObserveCassandraQuery("select_page", "messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nil
}

// Count returns the number of messages in a conversation
func (r *MessageRepository) Count(ctx context.Context, conversationID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`

	var count int64
	start := time.Now()
	err := r.session.Query(query, gocql.UUID(conversationID)).WithContext(ctx).Scan(&count)
	metrics.ObserveCassandraQuery("count", "messages", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return int(count), nil
}

// MarkRead flags the given messages as read in one unlogged batch.
// All messages must belong to the same conversation partition.
func (r *MessageRepository) MarkRead(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := r.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, message := range messages {
		batch.Query(`
			UPDATE messages SET is_read = true
			WHERE conversation_id = ? AND created_at = ? AND message_id = ?
		`, gocql.UUID(message.ConversationID), message.CreatedAt, gocql.UUID(message.ID))
	}

	start := time.Now()
	err := r.session.ExecuteBatch(batch)
	metrics.ObserveCassandraQuery("mark_read", "messages", start, err)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}

	for _, message := range messages {
		message.IsRead = true
	}

	return nil
}
