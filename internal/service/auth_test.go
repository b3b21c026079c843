package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cairnhq/cairn/internal/domain"
)

// MockTenantRepository is a mock implementation of TenantRepository
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

// MockAPIKeyRepository is a mock implementation of APIKeyRepository
type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	mock.Mock
}

func (m *MockUUIDGenerator) NewString() string {
	args := m.Called()
	return args.String(0)
}

func testTenant() *domain.Tenant {
	return &domain.Tenant{ID: "tenant-1", Name: "acme", CreatedAt: time.Now().UTC()}
}

func TestAuthService_CreateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a tenant", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		uuidGen := new(MockUUIDGenerator)
		svc := NewAuthService(tenantRepo, nil, uuidGen)

		uuidGen.On("NewString").Return("tenant-1")
		tenantRepo.On("Create", mock.Anything, mock.MatchedBy(func(tn *domain.Tenant) bool {
			return tn.ID == "tenant-1" && tn.Name == "acme"
		})).Return(nil)

		tenant, err := svc.CreateTenant(ctx, "acme")

		require.NoError(t, err)
		assert.Equal(t, "tenant-1", tenant.ID)
		assert.Equal(t, "acme", tenant.Name)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		svc := NewAuthService(new(MockTenantRepository), nil, new(MockUUIDGenerator))

		_, err := svc.CreateTenant(ctx, "")

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	})
}

func TestAuthService_CreateAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("mints a token and stores only its hash", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		keyRepo := new(MockAPIKeyRepository)
		uuidGen := new(MockUUIDGenerator)
		svc := NewAuthService(tenantRepo, keyRepo, uuidGen)

		tenantRepo.On("GetByID", mock.Anything, "tenant-1").Return(testTenant(), nil)
		uuidGen.On("NewString").Return("key-1")

		var storedHash string
		keyRepo.On("Create", mock.Anything, mock.MatchedBy(func(key *domain.APIKey) bool {
			storedHash = key.KeyHash
			return key.TenantID == "tenant-1" && key.Name == "ci"
		})).Return(nil)

		token, err := svc.CreateAPIKey(ctx, "tenant-1", "ci")

		require.NoError(t, err)
		assert.True(t, IsValidAPIToken(token))
		assert.NotEqual(t, token, storedHash)
		assert.Len(t, storedHash, 64)
	})

	t.Run("unknown tenant propagates", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		svc := NewAuthService(tenantRepo, new(MockAPIKeyRepository), new(MockUUIDGenerator))

		tenantRepo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrTenantNotFound)

		_, err := svc.CreateAPIKey(ctx, "missing", "ci")

		assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	})
}

func TestAuthService_ValidateAPIKey(t *testing.T) {
	ctx := context.Background()

	validToken := "crn_" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	t.Run("resolves a valid key to its tenant", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		keyRepo := new(MockAPIKeyRepository)
		svc := NewAuthService(tenantRepo, keyRepo, new(MockUUIDGenerator))

		keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(&domain.APIKey{
			ID:       "key-1",
			TenantID: "tenant-1",
			Name:     "ci",
		}, nil)
		tenantRepo.On("GetByID", mock.Anything, "tenant-1").Return(testTenant(), nil)

		tenantID, err := svc.ValidateAPIKey(ctx, validToken)

		require.NoError(t, err)
		assert.Equal(t, "tenant-1", tenantID)
	})

	t.Run("rejects malformed tokens without a lookup", func(t *testing.T) {
		keyRepo := new(MockAPIKeyRepository)
		svc := NewAuthService(new(MockTenantRepository), keyRepo, new(MockUUIDGenerator))

		_, err := svc.ValidateAPIKey(ctx, "not-a-token")

		assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
		keyRepo.AssertNotCalled(t, "GetByHash", mock.Anything, mock.Anything)
	})

	t.Run("unknown key reports invalid", func(t *testing.T) {
		keyRepo := new(MockAPIKeyRepository)
		svc := NewAuthService(new(MockTenantRepository), keyRepo, new(MockUUIDGenerator))

		keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrAPIKeyNotFound)

		_, err := svc.ValidateAPIKey(ctx, validToken)

		assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
	})

	t.Run("revoked key is rejected", func(t *testing.T) {
		keyRepo := new(MockAPIKeyRepository)
		svc := NewAuthService(new(MockTenantRepository), keyRepo, new(MockUUIDGenerator))

		revokedAt := time.Now().UTC()
		keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(&domain.APIKey{
			ID:        "key-1",
			TenantID:  "tenant-1",
			RevokedAt: &revokedAt,
		}, nil)

		_, err := svc.ValidateAPIKey(ctx, validToken)

		assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
	})

	t.Run("key whose tenant is gone reports TenantNotFound", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		keyRepo := new(MockAPIKeyRepository)
		svc := NewAuthService(tenantRepo, keyRepo, new(MockUUIDGenerator))

		keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(&domain.APIKey{
			ID:       "key-1",
			TenantID: "tenant-gone",
		}, nil)
		tenantRepo.On("GetByID", mock.Anything, "tenant-gone").Return(nil, domain.ErrTenantNotFound)

		_, err := svc.ValidateAPIKey(ctx, validToken)

		assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	})
}

func TestAuthService_CreateAPIKeyWithToken(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a caller-supplied token", func(t *testing.T) {
		tenantRepo := new(MockTenantRepository)
		keyRepo := new(MockAPIKeyRepository)
		uuidGen := new(MockUUIDGenerator)
		svc := NewAuthService(tenantRepo, keyRepo, uuidGen)

		token := "crn_" + "abcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcd"
		tenantRepo.On("GetByID", mock.Anything, "tenant-1").Return(testTenant(), nil)
		uuidGen.On("NewString").Return("key-1")
		keyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

		err := svc.CreateAPIKeyWithToken(ctx, "tenant-1", "bootstrap", token)

		require.NoError(t, err)
		keyRepo.AssertExpectations(t)
	})

	t.Run("rejects a malformed token", func(t *testing.T) {
		svc := NewAuthService(new(MockTenantRepository), new(MockAPIKeyRepository), new(MockUUIDGenerator))

		err := svc.CreateAPIKeyWithToken(ctx, "tenant-1", "bootstrap", "crn_short")

		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	})
}

func TestIsValidAPIToken(t *testing.T) {
	valid := "crn_" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	assert.True(t, IsValidAPIToken(valid))
	assert.False(t, IsValidAPIToken(""))
	assert.False(t, IsValidAPIToken("crn_tooshort"))
	assert.False(t, IsValidAPIToken("ntx_"+valid[4:]))
	assert.False(t, IsValidAPIToken("crn_"+"zz23456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
}
