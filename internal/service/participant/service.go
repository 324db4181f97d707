package participant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourly-backend/internal/domain"
	"tourly-backend/pkg/logger"
	"tourly-backend/pkg/metrics"
)

// TouristRepository reads tourist accounts
type TouristRepository interface {
	GetTourist(ctx context.Context, userID uuid.UUID) (*domain.TouristRecord, error)
}

// ProviderRepository reads provider profiles by provider id
type ProviderRepository interface {
	GetProvider(ctx context.Context, providerID uuid.UUID) (*domain.ProviderRecord, error)
}

// ViewCache stores resolved views between requests
type ViewCache interface {
	GetParticipant(ctx context.Context, role domain.Role, id uuid.UUID) (domain.ParticipantView, bool, error)
	SetParticipant(ctx context.Context, role domain.Role, view domain.ParticipantView) error
}

// AvatarSigner turns a stored avatar reference into a fetchable URL
type AvatarSigner interface {
	SignAvatar(ctx context.Context, ref string) (string, error)
}

type lookupFunc func(ctx context.Context, id uuid.UUID) (*domain.ParticipantView, error)

// Service resolves display records for conversation participants
type Service struct {
	tourists  TouristRepository
	providers ProviderRepository
	cache     ViewCache
	signer    AvatarSigner
	logger    *zap.Logger
	lookups   map[domain.Role]lookupFunc
}

// Option configures optional collaborators
type Option func(*Service)

// WithCache enables the participant view cache
func WithCache(cache ViewCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithAvatarSigner enables presigning of avatar object keys
func WithAvatarSigner(signer AvatarSigner) Option {
	return func(s *Service) { s.signer = signer }
}

// NewService creates a participant resolver
func NewService(tourists TouristRepository, providers ProviderRepository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		tourists:  tourists,
		providers: providers,
		logger:    logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lookups = map[domain.Role]lookupFunc{
		domain.Tourist:  s.lookupTourist,
		domain.Provider: s.lookupProvider,
	}
	return s
}

// Resolve returns the display record of id in the given role. A missing
// record yields the role's fallback name; only store failures are returned.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, role domain.Role) (domain.ParticipantView, error) {
	lookup, ok := s.lookups[role]
	if !ok {
		return domain.ParticipantView{}, fmt.Errorf("unsupported role %v", role)
	}

	if view, hit := s.fromCache(ctx, role, id); hit {
		return s.withSignedAvatar(ctx, view), nil
	}

	view, err := lookup(ctx, id)
	if err != nil {
		return domain.ParticipantView{}, err
	}
	if view == nil {
		return domain.ParticipantView{ID: id, Name: role.FallbackName()}, nil
	}

	if s.cache != nil {
		if err := s.cache.SetParticipant(ctx, role, *view); err != nil {
			s.logger.Warn("Failed to cache participant view",
				zap.String("role", role.String()),
				zap.String("participant_id", id.String()),
				zap.Error(err))
		}
	}

	return s.withSignedAvatar(ctx, *view), nil
}

func (s *Service) fromCache(ctx context.Context, role domain.Role, id uuid.UUID) (domain.ParticipantView, bool) {
	if s.cache == nil {
		return domain.ParticipantView{}, false
	}

	view, found, err := s.cache.GetParticipant(ctx, role, id)
	switch {
	case err != nil:
		metrics.ChatParticipantCacheTotal.WithLabelValues("error").Inc()
		s.logger.Debug("Participant cache unavailable",
			zap.String("participant_id", id.String()),
			zap.Error(err))
		return domain.ParticipantView{}, false
	case !found:
		metrics.ChatParticipantCacheTotal.WithLabelValues("miss").Inc()
		return domain.ParticipantView{}, false
	}

	metrics.ChatParticipantCacheTotal.WithLabelValues("hit").Inc()
	return view, true
}

func (s *Service) withSignedAvatar(ctx context.Context, view domain.ParticipantView) domain.ParticipantView {
	if s.signer == nil || view.AvatarRef == "" {
		return view
	}

	signed, err := s.signer.SignAvatar(ctx, view.AvatarRef)
	if err != nil {
		s.logger.Warn("Failed to sign avatar, keeping raw reference",
			zap.String("participant_id", view.ID.String()),
			zap.Error(err))
		return view
	}

	view.AvatarRef = signed
	return view
}

func (s *Service) lookupTourist(ctx context.Context, id uuid.UUID) (*domain.ParticipantView, error) {
	tourist, err := s.tourists.GetTourist(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tourist: %w", err)
	}
	if tourist == nil {
		return nil, nil
	}

	return &domain.ParticipantView{
		ID:        id,
		Name:      tourist.DisplayName,
		AvatarRef: deref(tourist.AvatarRef),
	}, nil
}

func (s *Service) lookupProvider(ctx context.Context, id uuid.UUID) (*domain.ParticipantView, error) {
	provider, err := s.providers.GetProvider(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	return &domain.ParticipantView{
		ID:        id,
		Name:      provider.BusinessName,
		AvatarRef: deref(provider.LogoRef),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
