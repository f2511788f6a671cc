package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"dataload-service/internal/dataload"
	"dataload-service/internal/models"
	"dataload-service/internal/queue"
	"dataload-service/internal/repository"
	"dataload-service/internal/storage"
)

// MockSessionRepository is a mock implementation of SessionRepositoryInterface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UploadSession), args.Error(1)
}

func (m *MockSessionRepository) List(ctx context.Context, tenantID string, filter repository.SessionFilter) ([]models.UploadSession, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.UploadSession), args.Get(1).(int64), args.Error(2)
}

func (m *MockSessionRepository) MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

func (m *MockSessionRepository) UpdateProgress(ctx context.Context, tenantID string, id uuid.UUID, records, errorCount int) error {
	args := m.Called(ctx, tenantID, id, records, errorCount)
	return args.Error(0)
}

func (m *MockSessionRepository) Complete(ctx context.Context, tenantID string, id uuid.UUID, outcome models.SessionOutcome) error {
	args := m.Called(ctx, tenantID, id, outcome)
	return args.Error(0)
}

func (m *MockSessionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.UploadSession, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UploadSession), args.Error(1)
}

func (m *MockSessionRepository) FailAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) HasCompleted(ctx context.Context, tenantID string, loadType models.LoadType) (bool, error) {
	args := m.Called(ctx, tenantID, loadType)
	return args.Bool(0), args.Error(1)
}

var _ repository.SessionRepositoryInterface = (*MockSessionRepository)(nil)

// MockObjectStore is a mock implementation of storage.ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, key, body, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	args := m.Called(ctx, locator)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, locator string) error {
	args := m.Called(ctx, locator)
	return args.Error(0)
}

var _ storage.ObjectStore = (*MockObjectStore)(nil)

// MockQueue is a mock implementation of JobQueue
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, d queue.Descriptor) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

var _ JobQueue = (*MockQueue)(nil)

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, job dataload.Job, r io.Reader, progress dataload.ProgressFunc) models.SessionOutcome {
	args := m.Called(ctx, job, r, progress)
	return args.Get(0).(models.SessionOutcome)
}

var _ Runner = (*MockRunner)(nil)

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishSession(ctx context.Context, eventType string, session *models.UploadSession) error {
	args := m.Called(ctx, eventType, session)
	return args.Error(0)
}

var _ EventPublisher = (*MockPublisher)(nil)
