package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"crimesleuth/internal/mlclient"
	"crimesleuth/internal/model"
	"crimesleuth/internal/query"
	"crimesleuth/internal/storage"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByResetTokenHash(ctx context.Context, hash string) (*model.User, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

// MockCaseRepository is a mock implementation of CaseRepository.
type MockCaseRepository struct {
	mock.Mock
}

func (m *MockCaseRepository) Create(ctx context.Context, c *model.Case) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCaseRepository) Update(ctx context.Context, c *model.Case) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Case), args.Error(1)
}

func (m *MockCaseRepository) ExistsByNumber(ctx context.Context, caseNumber string) (bool, error) {
	args := m.Called(ctx, caseNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockCaseRepository) List(ctx context.Context, q query.ListQuery) ([]model.Case, int64, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Case), args.Get(1).(int64), args.Error(2)
}

func (m *MockCaseRepository) EvidenceSummaries(ctx context.Context, caseID uuid.UUID) ([]model.EvidenceSummary, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EvidenceSummary), args.Error(1)
}

func (m *MockCaseRepository) RecountEvidence(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockEvidenceRepository is a mock implementation of EvidenceRepository.
type MockEvidenceRepository struct {
	mock.Mock
}

func (m *MockEvidenceRepository) CreateForCase(ctx context.Context, ev *model.Evidence) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockEvidenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Evidence), args.Error(1)
}

func (m *MockEvidenceRepository) FindDetail(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Evidence), args.Error(1)
}

func (m *MockEvidenceRepository) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	args := m.Called(ctx, identifier)
	return args.Bool(0), args.Error(1)
}

func (m *MockEvidenceRepository) List(ctx context.Context, caseID *uuid.UUID, q query.ListQuery) ([]model.Evidence, int64, error) {
	args := m.Called(ctx, caseID, q)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Evidence), args.Get(1).(int64), args.Error(2)
}

func (m *MockEvidenceRepository) Update(ctx context.Context, id uuid.UUID, apply func(ev *model.Evidence) error, entry *model.CustodyEntry) (*model.Evidence, error) {
	args := m.Called(ctx, id, apply, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Evidence), args.Error(1)
}

func (m *MockEvidenceRepository) Delete(ctx context.Context, id uuid.UUID) (*model.Evidence, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Evidence), args.Error(1)
}

func (m *MockEvidenceRepository) AppendAnalysis(ctx context.Context, id uuid.UUID, result *model.AnalysisResult, entry *model.CustodyEntry) error {
	args := m.Called(ctx, id, result, entry)
	return args.Error(0)
}

// MockTokenStore is a mock implementation of TokenStoreInterface.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) StoreRefreshToken(ctx context.Context, tokenID string, userID uuid.UUID, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, userID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) GetRefreshToken(ctx context.Context, tokenID string) (uuid.UUID, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockTokenStore) DeleteRefreshToken(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *MockTokenStore) BlacklistAccessToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) IsAccessTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// MockStore is a mock implementation of storage.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*storage.Object, error) {
	args := m.Called(ctx, key, body, size, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Object), args.Error(1)
}

func (m *MockStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockAnalyzer is a mock implementation of ImageAnalyzer.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) AnalyzeImage(ctx context.Context, filename, contentType string, image io.Reader) (*mlclient.ImageAnalysis, error) {
	args := m.Called(ctx, filename, contentType, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlclient.ImageAnalysis), args.Error(1)
}

func (m *MockAnalyzer) Health(ctx context.Context) (*mlclient.Health, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mlclient.Health), args.Error(1)
}
