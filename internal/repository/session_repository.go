package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dataload-service/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("upload session not found")
	ErrInvalidTransition = errors.New("invalid upload session transition")
)

// AbandonedMessage is the details text of a session failed by the sweeper.
const AbandonedMessage = "processing abandoned: the worker stopped reporting progress"

// SessionFilter narrows a session listing.
type SessionFilter struct {
	Status   models.SessionStatus
	LoadType models.LoadType
	Limit    int
	Offset   int
}

// SessionRepository persists upload sessions and guards their state machine.
// Every status change is a conditional UPDATE on the current status.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new pending session.
func (r *SessionRepository) Create(ctx context.Context, session *models.UploadSession) error {
	session.Status = models.SessionPending
	return r.db.WithContext(ctx).Create(session).Error
}

// Get returns a session of the tenant.
func (r *SessionRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error) {
	var session models.UploadSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// List returns the tenant's sessions, newest first, plus the total count.
func (r *SessionRepository) List(ctx context.Context, tenantID string, filter SessionFilter) ([]models.UploadSession, int64, error) {
	var sessions []models.UploadSession
	var total int64

	query := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.LoadType != "" {
		query = query.Where("load_type = ?", filter.LoadType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Omit("errors").
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&sessions).Error
	return sessions, total, err
}

// MarkProcessing moves a session from pending to processing. Exactly one caller
// wins; the others get ErrInvalidTransition.
func (r *SessionRepository) MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.SessionPending).
		Updates(map[string]interface{}{
			"status":     models.SessionProcessing,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// UpdateProgress flushes running counters of a processing session.
func (r *SessionRepository) UpdateProgress(ctx context.Context, tenantID string, id uuid.UUID, records, errorCount int) error {
	return r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.SessionProcessing).
		Updates(map[string]interface{}{
			"record_count": records,
			"error_count":  errorCount,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// Complete records the terminal state of a processing session.
func (r *SessionRepository) Complete(ctx context.Context, tenantID string, id uuid.UUID, outcome models.SessionOutcome) error {
	if !models.CanTransition(models.SessionProcessing, outcome.Status) {
		return fmt.Errorf("%w: processing -> %s", ErrInvalidTransition, outcome.Status)
	}

	details := outcome.Message
	var errorsJSON []byte
	if len(outcome.Errors) > 0 {
		var err error
		errorsJSON, err = json.Marshal(outcome.Errors)
		if err != nil {
			return fmt.Errorf("failed to serialize row errors: %w", err)
		}
		details = string(errorsJSON)
	}
	summary, err := json.Marshal(outcome.Summarize())
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       outcome.Status,
		"details":      details,
		"summary":      datatypes.JSON(summary),
		"record_count": outcome.RecordCount,
		"error_count":  outcome.ErrorCount,
		"finished_at":  now,
		"updated_at":   now,
	}
	if errorsJSON != nil {
		updates["errors"] = datatypes.JSON(errorsJSON)
	}

	result := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.SessionProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// ListStalePending returns sessions of any tenant still pending since before cutoff.
func (r *SessionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.UploadSession, error) {
	var sessions []models.UploadSession
	err := r.db.WithContext(ctx).
		Omit("errors").
		Where("status = ? AND created_at < ?", models.SessionPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// FailAbandoned fails sessions of any tenant that are still processing with no
// progress written since before cutoff, i.e. their worker died.
func (r *SessionRepository) FailAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("status = ? AND updated_at < ?", models.SessionProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":      models.SessionFailed,
			"details":     AbandonedMessage,
			"finished_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

// HasCompleted reports whether the tenant has a finished load of the given type
// that committed its rows.
func (r *SessionRepository) HasCompleted(ctx context.Context, tenantID string, loadType models.LoadType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UploadSession{}).
		Where("tenant_id = ? AND load_type = ? AND status IN ?", tenantID, loadType,
			[]models.SessionStatus{models.SessionCompleted, models.SessionCompletedWithErrors}).
		Count(&count).Error
	return count > 0, err
}

// SessionRepositoryInterface is what services and jobs need from session persistence.
type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *models.UploadSession) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.UploadSession, error)
	List(ctx context.Context, tenantID string, filter SessionFilter) ([]models.UploadSession, int64, error)
	MarkProcessing(ctx context.Context, tenantID string, id uuid.UUID) error
	UpdateProgress(ctx context.Context, tenantID string, id uuid.UUID, records, errorCount int) error
	Complete(ctx context.Context, tenantID string, id uuid.UUID, outcome models.SessionOutcome) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.UploadSession, error)
	FailAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
	HasCompleted(ctx context.Context, tenantID string, loadType models.LoadType) (bool, error)
}

var _ SessionRepositoryInterface = (*SessionRepository)(nil)
