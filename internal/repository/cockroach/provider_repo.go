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

// ProviderRepository reads provider profiles and their listings
type ProviderRepository struct {
	pool *pgxpool.Pool
}

// NewProviderRepository creates a new ProviderRepository
func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

// GetProvider retrieves a provider by provider ID (not account ID).
// Returns (nil, nil) when absent.
func (r *ProviderRepository) GetProvider(ctx context.Context, providerID uuid.UUID) (*domain.ProviderRecord, error) {
	query := `
		SELECT provider_id, account_id, business_name, logo_ref
		FROM providers
		WHERE provider_id = $1
	`

	provider := &domain.ProviderRecord{}
	err := r.pool.QueryRow(ctx, query, providerID).Scan(
		&provider.ProviderID,
		&provider.AccountID,
		&provider.BusinessName,
		&provider.LogoRef,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return provider, nil
}

// GetListing retrieves a listing by ID. Returns (nil, nil) when absent.
func (r *ProviderRepository) GetListing(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	query := `
		SELECT listing_id, provider_id, title
		FROM listings
		WHERE listing_id = $1
	`

	listing := &domain.Listing{}
	err := r.pool.QueryRow(ctx, query, listingID).Scan(
		&listing.ListingID,
		&listing.ProviderID,
		&listing.Title,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return listing, nil
}
