package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"dataload-service/internal/dataload"
	"dataload-service/internal/events"
	"dataload-service/internal/models"
	"dataload-service/internal/queue"
	"dataload-service/internal/repository"
)

type serviceFixture struct {
	sessions  *MockSessionRepository
	objects   *MockObjectStore
	queue     *MockQueue
	runner    *MockRunner
	publisher *MockPublisher
	service   *UploadService
}

func newServiceFixture(t *testing.T, opts UploadServiceOptions) *serviceFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &serviceFixture{
		sessions:  new(MockSessionRepository),
		objects:   new(MockObjectStore),
		queue:     new(MockQueue),
		runner:    new(MockRunner),
		publisher: new(MockPublisher),
	}
	if opts.Publisher == nil {
		opts.Publisher = f.publisher
	}
	f.service = NewUploadService(f.sessions, f.objects, f.queue, f.runner, logger, opts)
	f.service.retryBackoff = time.Millisecond
	return f
}

func (f *serviceFixture) assertExpectations(t *testing.T) {
	f.sessions.AssertExpectations(t)
	f.objects.AssertExpectations(t)
	f.queue.AssertExpectations(t)
	f.runner.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func submitInput() SubmitInput {
	return SubmitInput{
		TenantID:    "tenant-1",
		LoadType:    "brands",
		Filename:    "brands.csv",
		ContentType: "text/csv",
		Size:        12,
		Body:        strings.NewReader("name,logo\n"),
		SubmittedBy: "user-1",
	}
}

func TestSubmit_Success(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()

	f.objects.On("Put", ctx, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "tenants/tenant-1/brand/") && strings.HasSuffix(key, "/brands.csv")
	}), mock.Anything, int64(12), "text/csv").Return("local://tenant-1/brand/x/brands.csv", nil)
	f.sessions.On("Create", ctx, mock.AnythingOfType("*models.UploadSession")).Return(nil)
	f.queue.On("Enqueue", ctx, mock.AnythingOfType("queue.Descriptor")).Return(nil)
	f.publisher.On("PublishSession", ctx, events.SessionSubmitted, mock.AnythingOfType("*models.UploadSession")).Return(nil)

	session, err := f.service.Submit(ctx, submitInput())

	require.NoError(t, err)
	assert.Equal(t, models.LoadTypeBrand, session.LoadType)
	assert.Equal(t, "local://tenant-1/brand/x/brands.csv", session.StorageLocator)
	assert.Equal(t, "user-1", session.SubmittedBy)

	desc := f.queue.Calls[0].Arguments.Get(1).(queue.Descriptor)
	assert.Equal(t, session.ID, desc.SessionID)
	assert.Equal(t, session.StorageLocator, desc.StorageLocator)
	f.assertExpectations(t)
}

func TestSubmit_RejectsBeforeStoring(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})

	in := submitInput()
	in.LoadType = "widgets"
	_, err := f.service.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnknownLoadType)

	in = submitInput()
	in.Filename = "brands.pdf"
	_, err = f.service.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	f.objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_EnforcesLoadSequence(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{EnforceSequence: true})
	ctx := context.Background()

	f.sessions.On("HasCompleted", ctx, "tenant-1", models.LoadTypeBrand).Return(true, nil)
	f.sessions.On("HasCompleted", ctx, "tenant-1", models.LoadTypeReturnPolicy).Return(false, nil).Once()

	in := submitInput()
	in.LoadType = "products"
	in.Filename = "products.csv"
	_, err := f.service.Submit(ctx, in)
	require.ErrorIs(t, err, ErrPrerequisiteMissing)
	assert.ErrorContains(t, err, "load return_policy before product")
	f.objects.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	f.sessions.On("HasCompleted", ctx, "tenant-1", models.LoadTypeReturnPolicy).Return(false, errors.New("db down")).Once()
	_, err = f.service.Submit(ctx, in)
	assert.NotErrorIs(t, err, ErrPrerequisiteMissing)
	assert.ErrorContains(t, err, "db down")

	f.objects.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("local://k", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.queue.On("Enqueue", ctx, mock.Anything).Return(nil)
	f.publisher.On("PublishSession", ctx, events.SessionSubmitted, mock.Anything).Return(nil)
	_, err = f.service.Submit(ctx, submitInput())
	require.NoError(t, err, "brands have no prerequisites")
	f.assertExpectations(t)
}

func TestSubmit_SequenceNotEnforcedByDefault(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()

	f.objects.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("local://k", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.queue.On("Enqueue", ctx, mock.Anything).Return(nil)
	f.publisher.On("PublishSession", ctx, events.SessionSubmitted, mock.Anything).Return(nil)

	in := submitInput()
	in.LoadType = "meta_tags"
	in.Filename = "meta.csv"
	session, err := f.service.Submit(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.LoadTypeMetaTag, session.LoadType)
	f.sessions.AssertNotCalled(t, "HasCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_CreateFailureRemovesUpload(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()

	f.objects.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("local://k", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(errors.New("db down"))
	f.objects.On("Delete", ctx, "local://k").Return(nil)

	_, err := f.service.Submit(ctx, submitInput())

	assert.ErrorContains(t, err, "db down")
	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestSubmit_EnqueueFailureLeavesSessionPending(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()

	f.objects.On("Put", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("local://k", nil)
	f.sessions.On("Create", ctx, mock.Anything).Return(nil)
	f.queue.On("Enqueue", ctx, mock.Anything).Return(errors.New("redis down"))
	f.publisher.On("PublishSession", ctx, events.SessionSubmitted, mock.Anything).Return(nil)

	session, err := f.service.Submit(ctx, submitInput())

	require.NoError(t, err)
	assert.NotNil(t, session)
	f.assertExpectations(t)
}

func descriptor() queue.Descriptor {
	return queue.Descriptor{
		SessionID:        uuid.New(),
		TenantID:         "tenant-1",
		LoadType:         models.LoadTypeBrand,
		StorageLocator:   "local://tenant-1/brand/x/brands.csv",
		OriginalFilename: "brands.csv",
		SubmittedBy:      "user-1",
	}
}

func TestProcess_RunsJobToTerminalState(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{DeleteAfterProcessing: true})
	ctx := context.Background()
	d := descriptor()
	session := &models.UploadSession{ID: d.SessionID, TenantID: d.TenantID, Status: models.SessionProcessing}
	outcome := models.SessionOutcome{Status: models.SessionCompleted, RecordCount: 3, SucceededRows: 3, Message: "3 rows processed successfully"}

	f.sessions.On("MarkProcessing", ctx, d.TenantID, d.SessionID).Return(nil)
	f.sessions.On("Get", ctx, d.TenantID, d.SessionID).Return(session, nil)
	f.publisher.On("PublishSession", ctx, events.SessionProcessing, session).Return(nil)
	f.objects.On("Open", ctx, d.StorageLocator).Return(io.NopCloser(strings.NewReader("name,logo\n")), nil)
	f.runner.On("Run", ctx, mock.MatchedBy(func(job dataload.Job) bool {
		return job.SessionID == d.SessionID && job.Filename == "brands.csv" && job.SubmittedBy == "user-1"
	}), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(3).(dataload.ProgressFunc)
			progress(ctx, 2, 0)
		}).
		Return(outcome)
	f.sessions.On("UpdateProgress", ctx, d.TenantID, d.SessionID, 2, 0).Return(nil)
	f.sessions.On("Complete", ctx, d.TenantID, d.SessionID, outcome).Return(nil)
	f.publisher.On("PublishSession", ctx, events.SessionCompleted, session).Return(nil)
	f.objects.On("Delete", ctx, d.StorageLocator).Return(nil)

	require.NoError(t, f.service.Process(ctx, d))
	f.assertExpectations(t)
}

func TestProcess_AlreadyClaimed(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	d := descriptor()

	f.sessions.On("MarkProcessing", ctx, d.TenantID, d.SessionID).Return(repository.ErrInvalidTransition)

	err := f.service.Process(ctx, d)

	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestProcess_UnreadableFileFailsSession(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	d := descriptor()
	session := &models.UploadSession{ID: d.SessionID, TenantID: d.TenantID}

	f.sessions.On("MarkProcessing", ctx, d.TenantID, d.SessionID).Return(nil)
	f.sessions.On("Get", ctx, d.TenantID, d.SessionID).Return(session, nil)
	f.publisher.On("PublishSession", ctx, mock.Anything, session).Return(nil)
	f.objects.On("Open", ctx, d.StorageLocator).Return(nil, errors.New("object not found"))
	f.sessions.On("Complete", ctx, d.TenantID, d.SessionID, mock.MatchedBy(func(o models.SessionOutcome) bool {
		return o.Status == models.SessionFailed && strings.Contains(o.Message, "object not found")
	})).Return(nil)

	require.NoError(t, f.service.Process(ctx, d))
	f.runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestProcess_RetriesTerminalWrite(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	d := descriptor()
	session := &models.UploadSession{ID: d.SessionID, TenantID: d.TenantID}
	outcome := models.SessionOutcome{Status: models.SessionFailedValidation, Message: "file is empty"}

	f.sessions.On("MarkProcessing", ctx, d.TenantID, d.SessionID).Return(nil)
	f.sessions.On("Get", ctx, d.TenantID, d.SessionID).Return(session, nil)
	f.publisher.On("PublishSession", ctx, mock.Anything, session).Return(nil)
	f.objects.On("Open", ctx, d.StorageLocator).Return(io.NopCloser(strings.NewReader("")), nil)
	f.runner.On("Run", ctx, mock.Anything, mock.Anything, mock.Anything).Return(outcome)
	f.sessions.On("Complete", ctx, d.TenantID, d.SessionID, outcome).Return(errors.New("timeout")).Twice()
	f.sessions.On("Complete", ctx, d.TenantID, d.SessionID, outcome).Return(nil).Once()

	require.NoError(t, f.service.Process(ctx, d))
	f.sessions.AssertNumberOfCalls(t, "Complete", 3)
}

func TestProcess_GivesUpAfterRetries(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	d := descriptor()
	session := &models.UploadSession{ID: d.SessionID, TenantID: d.TenantID}
	outcome := models.SessionOutcome{Status: models.SessionCompleted}

	f.sessions.On("MarkProcessing", ctx, d.TenantID, d.SessionID).Return(nil)
	f.sessions.On("Get", ctx, d.TenantID, d.SessionID).Return(session, nil)
	f.publisher.On("PublishSession", ctx, events.SessionProcessing, session).Return(nil)
	f.objects.On("Open", ctx, d.StorageLocator).Return(io.NopCloser(strings.NewReader("")), nil)
	f.runner.On("Run", ctx, mock.Anything, mock.Anything, mock.Anything).Return(outcome)
	f.sessions.On("Complete", ctx, d.TenantID, d.SessionID, outcome).Return(errors.New("db down"))

	err := f.service.Process(ctx, d)

	assert.ErrorContains(t, err, "db down")
	f.sessions.AssertNumberOfCalls(t, "Complete", completeAttempts)
	f.publisher.AssertNotCalled(t, "PublishSession", mock.Anything, events.SessionCompleted, mock.Anything)
}

func TestGetErrors(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	id := uuid.New()

	finished := &models.UploadSession{
		ID:     id,
		Status: models.SessionCompletedWithErrors,
		Errors: datatypes.JSON(`[{"row_number":5,"field_name":"brand_name","error_message":"brand \"Nope\" not found","error_kind":"REFERENCE"}]`),
	}
	f.sessions.On("Get", ctx, "tenant-1", id).Return(finished, nil).Once()

	_, rowErrors, err := f.service.GetErrors(ctx, "tenant-1", id)
	require.NoError(t, err)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, 5, rowErrors[0].RowNumber)
	assert.Equal(t, "brand_name", rowErrors[0].Field())
	assert.Equal(t, models.ErrorKindReference, rowErrors[0].ErrorKind)

	f.sessions.On("Get", ctx, "tenant-1", id).Return(&models.UploadSession{ID: id, Status: models.SessionProcessing}, nil).Once()
	_, _, err = f.service.GetErrors(ctx, "tenant-1", id)
	assert.ErrorIs(t, err, ErrSessionNotFinished)

	f.sessions.On("Get", ctx, "tenant-1", id).Return(nil, repository.ErrSessionNotFound).Once()
	_, _, err = f.service.GetErrors(ctx, "tenant-1", id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetErrors_CleanSessionHasEmptyReport(t *testing.T) {
	f := newServiceFixture(t, UploadServiceOptions{})
	ctx := context.Background()
	id := uuid.New()

	f.sessions.On("Get", ctx, "tenant-1", id).Return(&models.UploadSession{ID: id, Status: models.SessionCompleted}, nil)

	_, rowErrors, err := f.service.GetErrors(ctx, "tenant-1", id)
	require.NoError(t, err)
	assert.NotNil(t, rowErrors)
	assert.Empty(t, rowErrors)
}
