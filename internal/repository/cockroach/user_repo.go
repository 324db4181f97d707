package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tourly-backend/internal/domain"
)

// UserRepository reads tourist accounts from the users table
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetTourist retrieves a tourist by account ID. Returns (nil, nil) when absent.
func (r *UserRepository) GetTourist(ctx context.Context, userID uuid.UUID) (*domain.TouristRecord, error) {
	query := `
		SELECT user_id, display_name, avatar_ref
		FROM users
		WHERE user_id = $1
	`

	tourist := &domain.TouristRecord{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&tourist.UserID,
		&tourist.DisplayName,
		&tourist.AvatarRef,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return tourist, nil
}
