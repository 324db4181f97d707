package domain

import (
	"github.com/google/uuid"
)

// Display fallbacks for records that cannot be resolved
const (
	UnknownUser     = "Unknown User"
	UnknownProvider = "Unknown Provider"
	UnknownListing  = "Unknown Listing"
	UnknownName     = "Unknown"
)

// ParticipantView is a read-only display projection of a tourist or provider.
// Never persisted; resolved per request.
type ParticipantView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarRef string    `json:"avatar_ref,omitempty"`
}

// TouristRecord is the subset of the users table needed for display.
// Maps to CockroachDB users table
type TouristRecord struct {
	UserID      uuid.UUID `db:"user_id"`
	DisplayName string    `db:"display_name"`
	AvatarRef   *string   `db:"avatar_ref"`
}

// ProviderRecord is the subset of the providers table needed for display.
// ProviderID is the provider document id, not the owning account id.
type ProviderRecord struct {
	ProviderID   uuid.UUID `db:"provider_id"`
	AccountID    uuid.UUID `db:"account_id"`
	BusinessName string    `db:"business_name"`
	LogoRef      *string   `db:"logo_ref"`
}

// Listing is the subset of the listings table the inbox needs
type Listing struct {
	ListingID  uuid.UUID `db:"listing_id"`
	ProviderID uuid.UUID `db:"provider_id"`
	Title      string    `db:"title"`
}
