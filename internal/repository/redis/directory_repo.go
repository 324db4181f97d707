package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tourly-backend/internal/database"
	"tourly-backend/internal/domain"
)

// DirectoryRepository caches resolved participant views in Redis
type DirectoryRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(client *database.RedisClient, ttl time.Duration) *DirectoryRepository {
	return &DirectoryRepository{client: client, ttl: ttl}
}

func participantKey(role domain.Role, id uuid.UUID) string {
	return fmt.Sprintf("participant:%s:%s", role, id)
}

// GetParticipant returns a cached view. found is false on a cache miss.
func (r *DirectoryRepository) GetParticipant(ctx context.Context, role domain.Role, id uuid.UUID) (view domain.ParticipantView, found bool, err error) {
	raw, err := r.client.SafeGet(ctx, participantKey(role, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ParticipantView{}, false, nil
		}
		return domain.ParticipantView{}, false, fmt.Errorf("failed to get participant view: %w", err)
	}

	if err := json.Unmarshal(raw, &view); err != nil {
		return domain.ParticipantView{}, false, fmt.Errorf("failed to decode participant view: %w", err)
	}

	return view, true, nil
}

// SetParticipant stores a view until the configured TTL expires
func (r *DirectoryRepository) SetParticipant(ctx context.Context, role domain.Role, view domain.ParticipantView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode participant view: %w", err)
	}

	if err := r.client.SafeSet(ctx, participantKey(role, view.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set participant view: %w", err)
	}
	return nil
}
