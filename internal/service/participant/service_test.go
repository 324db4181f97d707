package participant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tourly-backend/internal/domain"
)

type MockTouristRepository struct {
	mock.Mock
}

func (m *MockTouristRepository) GetTourist(ctx context.Context, userID uuid.UUID) (*domain.TouristRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TouristRecord), args.Error(1)
}

type MockProviderRepository struct {
	mock.Mock
}

func (m *MockProviderRepository) GetProvider(ctx context.Context, providerID uuid.UUID) (*domain.ProviderRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderRecord), args.Error(1)
}

type MockViewCache struct {
	mock.Mock
}

func (m *MockViewCache) GetParticipant(ctx context.Context, role domain.Role, id uuid.UUID) (domain.ParticipantView, bool, error) {
	args := m.Called(ctx, role, id)
	return args.Get(0).(domain.ParticipantView), args.Bool(1), args.Error(2)
}

func (m *MockViewCache) SetParticipant(ctx context.Context, role domain.Role, view domain.ParticipantView) error {
	args := m.Called(ctx, role, view)
	return args.Error(0)
}

type MockAvatarSigner struct {
	mock.Mock
}

func (m *MockAvatarSigner) SignAvatar(ctx context.Context, ref string) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestResolve_Tourist(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	providers := new(MockProviderRepository)
	svc := NewService(tourists, providers, zaptest.NewLogger(t))

	id := uuid.New()
	tourists.On("GetTourist", ctx, id).Return(&domain.TouristRecord{
		UserID:      id,
		DisplayName: "Lina",
		AvatarRef:   strPtr("users/lina.png"),
	}, nil)

	view, err := svc.Resolve(ctx, id, domain.Tourist)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantView{ID: id, Name: "Lina", AvatarRef: "users/lina.png"}, view)
	providers.AssertNotCalled(t, "GetProvider", mock.Anything, mock.Anything)
}

func TestResolve_ProviderByProviderID(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	providers := new(MockProviderRepository)
	svc := NewService(tourists, providers, nil)

	providerID := uuid.New()
	providers.On("GetProvider", ctx, providerID).Return(&domain.ProviderRecord{
		ProviderID:   providerID,
		AccountID:    uuid.New(),
		BusinessName: "Red Sea Divers",
	}, nil)

	view, err := svc.Resolve(ctx, providerID, domain.Provider)
	require.NoError(t, err)
	assert.Equal(t, providerID, view.ID)
	assert.Equal(t, "Red Sea Divers", view.Name)
	assert.Empty(t, view.AvatarRef)
}

func TestResolve_NotFoundFallbacks(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	providers := new(MockProviderRepository)
	cache := new(MockViewCache)
	svc := NewService(tourists, providers, nil, WithCache(cache))

	touristID, providerID := uuid.New(), uuid.New()
	cache.On("GetParticipant", ctx, mock.Anything, mock.Anything).Return(domain.ParticipantView{}, false, nil)
	tourists.On("GetTourist", ctx, touristID).Return(nil, nil)
	providers.On("GetProvider", ctx, providerID).Return(nil, nil)

	view, err := svc.Resolve(ctx, touristID, domain.Tourist)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantView{ID: touristID, Name: "Unknown User"}, view)

	view, err = svc.Resolve(ctx, providerID, domain.Provider)
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantView{ID: providerID, Name: "Unknown Provider"}, view)

	// fallbacks are never cached
	cache.AssertNotCalled(t, "SetParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_TransportErrorPropagates(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	svc := NewService(tourists, new(MockProviderRepository), nil)

	id := uuid.New()
	tourists.On("GetTourist", ctx, id).Return(nil, errors.New("connection reset"))

	_, err := svc.Resolve(ctx, id, domain.Tourist)
	assert.ErrorContains(t, err, "connection reset")
}

func TestResolve_CacheHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	cache := new(MockViewCache)
	signer := new(MockAvatarSigner)
	svc := NewService(tourists, new(MockProviderRepository), nil, WithCache(cache), WithAvatarSigner(signer))

	id := uuid.New()
	cached := domain.ParticipantView{ID: id, Name: "Lina", AvatarRef: "users/lina.png"}
	cache.On("GetParticipant", ctx, domain.Tourist, id).Return(cached, true, nil)
	signer.On("SignAvatar", ctx, "users/lina.png").Return("https://minio.local/users/lina.png?sig=1", nil)

	view, err := svc.Resolve(ctx, id, domain.Tourist)
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/users/lina.png?sig=1", view.AvatarRef)
	tourists.AssertNotCalled(t, "GetTourist", mock.Anything, mock.Anything)
}

func TestResolve_CacheFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	tourists := new(MockTouristRepository)
	cache := new(MockViewCache)
	svc := NewService(tourists, new(MockProviderRepository), zaptest.NewLogger(t), WithCache(cache))

	id := uuid.New()
	view := domain.ParticipantView{ID: id, Name: "Lina"}
	cache.On("GetParticipant", ctx, domain.Tourist, id).Return(domain.ParticipantView{}, false, errors.New("redis is in degraded mode"))
	cache.On("SetParticipant", ctx, domain.Tourist, view).Return(errors.New("redis is in degraded mode"))
	tourists.On("GetTourist", ctx, id).Return(&domain.TouristRecord{UserID: id, DisplayName: "Lina"}, nil)

	got, err := svc.Resolve(ctx, id, domain.Tourist)
	require.NoError(t, err)
	assert.Equal(t, view, got)
	cache.AssertExpectations(t)
}

func TestResolve_SignFailureKeepsRawRef(t *testing.T) {
	ctx := context.Background()
	providers := new(MockProviderRepository)
	signer := new(MockAvatarSigner)
	svc := NewService(new(MockTouristRepository), providers, zaptest.NewLogger(t), WithAvatarSigner(signer))

	id := uuid.New()
	providers.On("GetProvider", ctx, id).Return(&domain.ProviderRecord{ProviderID: id, BusinessName: "Nile Cruises", LogoRef: strPtr("logos/nile.png")}, nil)
	signer.On("SignAvatar", ctx, "logos/nile.png").Return("", errors.New("minio down"))

	view, err := svc.Resolve(ctx, id, domain.Provider)
	require.NoError(t, err)
	assert.Equal(t, "logos/nile.png", view.AvatarRef)
}
