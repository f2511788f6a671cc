package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dataload-service/internal/dataload"
	"dataload-service/internal/events"
	"dataload-service/internal/models"
	"dataload-service/internal/queue"
	"dataload-service/internal/repository"
	"dataload-service/internal/storage"
)

var (
	ErrUnknownLoadType     = errors.New("unknown load type")
	ErrUnsupportedFormat   = errors.New("unsupported file format, expected .csv or .xlsx")
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrAlreadyClaimed      = errors.New("upload session is not pending")
	ErrSessionNotFinished  = errors.New("upload session has not finished")
	ErrPrerequisiteMissing = errors.New("prerequisite load has not completed")
)

const completeAttempts = 3

// JobQueue accepts descriptors for asynchronous processing.
type JobQueue interface {
	Enqueue(ctx context.Context, d queue.Descriptor) error
}

// Runner executes one job and reports its terminal outcome.
type Runner interface {
	Run(ctx context.Context, job dataload.Job, r io.Reader, progress dataload.ProgressFunc) models.SessionOutcome
}

// EventPublisher publishes session lifecycle events.
type EventPublisher interface {
	PublishSession(ctx context.Context, eventType string, session *models.UploadSession) error
}

// SubmitInput is one uploaded file.
type SubmitInput struct {
	TenantID    string
	LoadType    string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	SubmittedBy string
}

// UploadService owns upload sessions: it accepts files, runs queued jobs and
// answers status queries.
type UploadService struct {
	sessions              repository.SessionRepositoryInterface
	objects               storage.ObjectStore
	queue                 JobQueue
	runner                Runner
	publisher             EventPublisher
	logger                *logrus.Entry
	deleteAfterProcessing bool
	enforceSequence       bool
	retryBackoff          time.Duration
}

type UploadServiceOptions struct {
	Publisher             EventPublisher
	DeleteAfterProcessing bool
	// EnforceSequence rejects a load type until its prerequisites have completed for the tenant.
	EnforceSequence bool
}

func NewUploadService(sessions repository.SessionRepositoryInterface, objects storage.ObjectStore, q JobQueue, runner Runner, logger *logrus.Logger, opts UploadServiceOptions) *UploadService {
	return &UploadService{
		sessions:              sessions,
		objects:               objects,
		queue:                 q,
		runner:                runner,
		publisher:             opts.Publisher,
		logger:                logger.WithField("component", "upload_service"),
		deleteAfterProcessing: opts.DeleteAfterProcessing,
		enforceSequence:       opts.EnforceSequence,
		retryBackoff:          200 * time.Millisecond,
	}
}

// Submit stores the file, creates the pending session and queues the job.
// A queueing failure is not returned: the session stays pending and the sweeper re-queues it.
func (s *UploadService) Submit(ctx context.Context, in SubmitInput) (*models.UploadSession, error) {
	loadType, ok := models.ParseLoadType(in.LoadType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoadType, in.LoadType)
	}
	if _, ok := dataload.FormatFromFilename(in.Filename); !ok {
		return nil, ErrUnsupportedFormat
	}
	if err := s.checkPrerequisites(ctx, in.TenantID, loadType); err != nil {
		return nil, err
	}

	id := uuid.New()
	key := storage.ObjectKey(in.TenantID, string(loadType), id.String(), in.Filename)
	locator, err := s.objects.Put(ctx, key, in.Body, in.Size, in.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	session := &models.UploadSession{
		ID:               id,
		TenantID:         in.TenantID,
		LoadType:         loadType,
		OriginalFilename: in.Filename,
		StorageLocator:   locator,
		SubmittedBy:      in.SubmittedBy,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if delErr := s.objects.Delete(ctx, locator); delErr != nil {
			s.logger.WithError(delErr).WithField("locator", locator).Warn("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{"session_id": id, "tenant_id": in.TenantID, "load_type": loadType})
	if err := s.queue.Enqueue(ctx, queue.DescriptorFor(session)); err != nil {
		log.WithError(err).Warn("Failed to enqueue upload session, leaving it for the sweeper")
	} else {
		log.Info("Upload session queued")
	}
	s.publish(ctx, events.SessionSubmitted, session)
	return session, nil
}

func (s *UploadService) checkPrerequisites(ctx context.Context, tenantID string, loadType models.LoadType) error {
	if !s.enforceSequence {
		return nil
	}
	for _, need := range models.Prerequisites[loadType] {
		done, err := s.sessions.HasCompleted(ctx, tenantID, need)
		if err != nil {
			return fmt.Errorf("failed to check %s prerequisites: %w", loadType, err)
		}
		if !done {
			return fmt.Errorf("%w: load %s before %s", ErrPrerequisiteMissing, need, loadType)
		}
	}
	return nil
}

// GetSession returns a session of the tenant.
func (s *UploadService) GetSession(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error) {
	session, err := s.sessions.Get(ctx, tenantID, id)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// ListSessions returns the tenant's sessions newest first.
func (s *UploadService) ListSessions(ctx context.Context, tenantID string, filter repository.SessionFilter) ([]models.UploadSession, int64, error) {
	return s.sessions.List(ctx, tenantID, filter)
}

// GetErrors returns the row error report of a finished session, in row order.
func (s *UploadService) GetErrors(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, []models.RowError, error) {
	session, err := s.GetSession(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	if !session.Status.IsTerminal() {
		return session, nil, ErrSessionNotFinished
	}
	rowErrors := []models.RowError{}
	if len(session.Errors) > 0 {
		if err := json.Unmarshal(session.Errors, &rowErrors); err != nil {
			return nil, nil, fmt.Errorf("failed to decode row errors: %w", err)
		}
	}
	return session, rowErrors, nil
}

// Process runs one queued job to a terminal state. ErrAlreadyClaimed means
// another worker owns the session or it already finished.
func (s *UploadService) Process(ctx context.Context, d queue.Descriptor) error {
	log := s.logger.WithFields(logrus.Fields{
		"session_id": d.SessionID,
		"tenant_id":  d.TenantID,
		"load_type":  d.LoadType,
	})

	if err := s.sessions.MarkProcessing(ctx, d.TenantID, d.SessionID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to claim session: %w", err)
	}
	log.Info("Processing upload session")
	s.publishCurrent(ctx, events.SessionProcessing, d)

	outcome := s.run(ctx, d, log)

	if err := s.complete(ctx, d, outcome, log); err != nil {
		log.WithError(err).Error("Failed to record terminal state, session is lost")
		return err
	}
	log.WithFields(logrus.Fields{
		"status":       outcome.Status,
		"record_count": outcome.RecordCount,
		"error_count":  outcome.ErrorCount,
	}).Info("Upload session finished")
	s.publishCurrent(ctx, events.SessionCompleted, d)

	if s.deleteAfterProcessing {
		if err := s.objects.Delete(ctx, d.StorageLocator); err != nil {
			log.WithError(err).Warn("Failed to delete processed upload")
		}
	}
	return nil
}

func (s *UploadService) run(ctx context.Context, d queue.Descriptor, log *logrus.Entry) models.SessionOutcome {
	body, err := s.objects.Open(ctx, d.StorageLocator)
	if err != nil {
		log.WithError(err).Error("Failed to open uploaded file")
		return models.SessionOutcome{Status: models.SessionFailed, Message: "uploaded file could not be read: " + err.Error()}
	}
	defer body.Close()

	job := dataload.Job{
		SessionID:   d.SessionID,
		TenantID:    d.TenantID,
		LoadType:    d.LoadType,
		Filename:    d.OriginalFilename,
		SubmittedBy: d.SubmittedBy,
	}
	progress := func(ctx context.Context, records, errorCount int) {
		if err := s.sessions.UpdateProgress(ctx, d.TenantID, d.SessionID, records, errorCount); err != nil {
			log.WithError(err).Warn("Failed to update session progress")
		}
	}
	return s.runner.Run(ctx, job, body, progress)
}

// complete retries the terminal write; a session left in processing would never finish.
func (s *UploadService) complete(ctx context.Context, d queue.Descriptor, outcome models.SessionOutcome, log *logrus.Entry) error {
	var err error
	backoff := s.retryBackoff
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		err = s.sessions.Complete(ctx, d.TenantID, d.SessionID, outcome)
		if err == nil || errors.Is(err, repository.ErrInvalidTransition) {
			return err
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Terminal session write failed")
		if attempt < completeAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

func (s *UploadService) publishCurrent(ctx context.Context, eventType string, d queue.Descriptor) {
	if s.publisher == nil {
		return
	}
	session, err := s.sessions.Get(ctx, d.TenantID, d.SessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", d.SessionID).Warn("Failed to load session for event")
		return
	}
	s.publish(ctx, eventType, session)
}

func (s *UploadService) publish(ctx context.Context, eventType string, session *models.UploadSession) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSession(ctx, eventType, session); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": session.ID,
			"event":      eventType,
		}).Warn("Failed to publish session event")
	}
}
