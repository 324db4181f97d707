package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tourly-backend/internal/domain"
)

const conversationColumns = `
	conversation_id, listing_id, tourist_id, provider_id,
	last_message, last_message_at, tourist_unread, provider_unread, created_at
`

// ConversationRepository handles conversation rows in CockroachDB.
// The table carries UNIQUE (listing_id, tourist_id).
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conversation := &domain.Conversation{}
	err := row.Scan(
		&conversation.ID,
		&conversation.ListingID,
		&conversation.TouristID,
		&conversation.ProviderID,
		&conversation.LastMessage,
		&conversation.LastMessageAt,
		&conversation.TouristUnread,
		&conversation.ProviderUnread,
		&conversation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetByID retrieves a conversation by ID. Returns (nil, nil) when absent.
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE conversation_id = $1`

	conversation, err := scanConversation(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

// FindByListingAndTourist looks up the conversation for a (listing, tourist) pair.
// Returns (nil, nil) when absent.
func (r *ConversationRepository) FindByListingAndTourist(ctx context.Context, listingID, touristID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE listing_id = $1 AND tourist_id = $2
		LIMIT 1`

	conversation, err := scanConversation(r.pool.QueryRow(ctx, query, listingID, touristID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}

	return conversation, nil
}

// CreateIfAbsent inserts the conversation unless one already exists for its
// (listing, tourist) pair. Reports whether a row was inserted.
func (r *ConversationRepository) CreateIfAbsent(ctx context.Context, conversation *domain.Conversation) (bool, error) {
	query := `
		INSERT INTO conversations (
			conversation_id, listing_id, tourist_id, provider_id,
			last_message_at, tourist_unread, provider_unread, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (listing_id, tourist_id) DO NOTHING
	`

	cmdTag, err := r.pool.Exec(ctx, query,
		conversation.ID,
		conversation.ListingID,
		conversation.TouristID,
		conversation.ProviderID,
		conversation.LastMessageAt,
		conversation.TouristUnread,
		conversation.ProviderUnread,
		conversation.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create conversation: %w", err)
	}

	return cmdTag.RowsAffected() == 1, nil
}

// ListByParticipant returns the conversations where participantID occupies
// role, most recently active first.
func (r *ConversationRepository) ListByParticipant(ctx context.Context, role domain.Role, participantID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE ` + role.ParticipantField() + ` = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*domain.Conversation, 0)
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// ResetUnread sets role's unread counter to zero
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID uuid.UUID, role domain.Role) error {
	query := `UPDATE conversations SET ` + role.UnreadField() + ` = 0 WHERE conversation_id = $1`

	cmdTag, err := r.pool.Exec(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("failed to reset unread counter: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found")
	}

	return nil
}

// RecordMessage stores the preview and activity time and increments the
// receiver's unread counter in a single statement.
func (r *ConversationRepository) RecordMessage(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time, receiver domain.Role) error {
	field := receiver.UnreadField()
	query := `
		UPDATE conversations
		SET last_message = $2,
		    last_message_at = $3,
		    ` + field + ` = ` + field + ` + 1
		WHERE conversation_id = $1
	`

	cmdTag, err := r.pool.Exec(ctx, query, conversationID, preview, at)
	if err != nil {
		return fmt.Errorf("failed to record message on conversation: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found")
	}

	return nil
}
