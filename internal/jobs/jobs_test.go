package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dataload-service/internal/models"
	"dataload-service/internal/queue"
	"dataload-service/internal/services"
)

type chanSource struct {
	jobs      chan queue.Descriptor
	errs      chan error
	mu        sync.Mutex
	forgotten []uuid.UUID
}

func newChanSource() *chanSource {
	return &chanSource{jobs: make(chan queue.Descriptor, 16), errs: make(chan error, 16)}
}

func (s *chanSource) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Descriptor, error) {
	select {
	case err := <-s.errs:
		return nil, err
	default:
	}
	select {
	case d := <-s.jobs:
		return &d, nil
	case <-time.After(timeout):
		return nil, queue.ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Forget(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, sessionID)
	return nil
}

func (s *chanSource) forgottenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forgotten)
}

type recordingProcessor struct {
	mu      sync.Mutex
	seen    []uuid.UUID
	release chan struct{}
	started chan struct{}
	result  error
	ctxErrs []error
}

func (p *recordingProcessor) Process(ctx context.Context, d queue.Descriptor) error {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, d.SessionID)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return p.result
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestDispatcher_ProcessesQueuedJobs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	source := newChanSource()
	processor := &recordingProcessor{}
	d := NewDispatcher(source, processor, logger, 2, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		source.jobs <- queue.Descriptor{SessionID: uuid.New()}
	}
	source.errs <- queue.ErrDescriptorMissing

	d.Start(context.Background())
	assert.Eventually(t, func() bool { return processor.count() == 5 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()
	assert.Equal(t, 5, source.forgottenCount())
}

func TestDispatcher_SkipsClaimedSessions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	source := newChanSource()
	processor := &recordingProcessor{result: services.ErrAlreadyClaimed}
	d := NewDispatcher(source, processor, logger, 1, 10*time.Millisecond)

	source.jobs <- queue.Descriptor{SessionID: uuid.New()}
	source.jobs <- queue.Descriptor{SessionID: uuid.New()}

	d.Start(context.Background())
	assert.Eventually(t, func() bool { return processor.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	d.Stop()
}

func TestDispatcher_StopWaitsForInFlightJob(t *testing.T) {
	logger, _ := test.NewNullLogger()
	source := newChanSource()
	processor := &recordingProcessor{release: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(source, processor, logger, 1, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	source.jobs <- queue.Descriptor{SessionID: uuid.New()}
	d.Start(ctx)
	<-processor.started

	stopped := make(chan struct{})
	go func() {
		cancel()
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(processor.release)
	<-stopped
	require.Equal(t, 1, processor.count())
	assert.NoError(t, processor.ctxErrs[0], "job context is not cancelled by shutdown")
}

func TestNewDispatcher_Defaults(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := NewDispatcher(newChanSource(), &recordingProcessor{}, logger, 0, 0)

	assert.Equal(t, 1, d.workers)
	assert.Equal(t, 5*time.Second, d.pollTimeout)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.UploadSession, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UploadSession), args.Error(1)
}

func (m *mockLister) FailAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Enqueue(ctx context.Context, d queue.Descriptor) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func TestPendingSweeper_Sweep(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	stale := []models.UploadSession{
		{ID: uuid.New(), TenantID: "t1", LoadType: models.LoadTypeBrand, StorageLocator: "local://a"},
		{ID: uuid.New(), TenantID: "t2", LoadType: models.LoadTypeProduct, StorageLocator: "local://b"},
		{ID: uuid.New(), TenantID: "t1", LoadType: models.LoadTypeCategory, StorageLocator: "local://c"},
	}
	lister := new(mockLister)
	lister.On("ListStalePending", ctx, now.Add(-10*time.Minute), sweepBatchSize).Return(stale, nil)

	sink := new(mockSink)
	sink.On("Enqueue", ctx, queue.DescriptorFor(&stale[0])).Return(nil)
	sink.On("Enqueue", ctx, queue.DescriptorFor(&stale[1])).Return(errors.New("redis down"))
	sink.On("Enqueue", ctx, queue.DescriptorFor(&stale[2])).Return(nil)

	sweeper := NewPendingSweeper(lister, sink, logger, time.Minute, 10*time.Minute, time.Hour)
	sweeper.now = func() time.Time { return now }

	assert.Equal(t, 2, sweeper.Sweep(ctx))
	lister.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestPendingSweeper_ListFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lister := new(mockLister)
	lister.On("ListStalePending", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	sink := new(mockSink)

	sweeper := NewPendingSweeper(lister, sink, logger, time.Minute, time.Minute, 0)

	assert.Equal(t, 0, sweeper.Sweep(context.Background()))
	sink.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestPendingSweeper_FailAbandoned(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	lister := new(mockLister)
	lister.On("FailAbandoned", ctx, now.Add(-30*time.Minute)).Return(int64(2), nil).Once()
	lister.On("FailAbandoned", ctx, now.Add(-30*time.Minute)).Return(int64(0), errors.New("db down")).Once()

	sweeper := NewPendingSweeper(lister, new(mockSink), logger, time.Minute, time.Minute, 30*time.Minute)
	sweeper.now = func() time.Time { return now }

	assert.Equal(t, int64(2), sweeper.FailAbandoned(ctx))
	assert.Equal(t, int64(0), sweeper.FailAbandoned(ctx))
	lister.AssertExpectations(t)
}

func TestPendingSweeper_FailAbandonedDisabled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	lister := new(mockLister)

	sweeper := NewPendingSweeper(lister, new(mockSink), logger, time.Minute, time.Minute, 0)

	assert.Equal(t, int64(0), sweeper.FailAbandoned(context.Background()))
	lister.AssertNotCalled(t, "FailAbandoned", mock.Anything, mock.Anything)
}
