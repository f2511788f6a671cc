package dataload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dataload-service/internal/models"
)

// Job describes one file to load. The session already exists.
type Job struct {
	SessionID   uuid.UUID
	TenantID    string
	LoadType    models.LoadType
	Filename    string
	SubmittedBy string
}

// ProgressFunc receives the running counters while a job is processing.
type ProgressFunc func(ctx context.Context, records, errors int)

type PipelineConfig struct {
	RowTimeout    time.Duration
	ProgressEvery int
}

// Pipeline runs a file through decode, resolve and upsert, one row at a time.
type Pipeline struct {
	store         CatalogStore
	decoder       *Decoder
	logger        *logrus.Entry
	rowTimeout    time.Duration
	progressEvery int
	now           func() time.Time
}

func NewPipeline(store CatalogStore, logger *logrus.Logger, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		store:         store,
		decoder:       NewDecoder(),
		logger:        logger.WithField("component", "dataload_pipeline"),
		rowTimeout:    cfg.RowTimeout,
		progressEvery: cfg.ProgressEvery,
		now:           time.Now,
	}
}

// Run processes the file and returns the terminal outcome. It never returns a
// non-terminal status; job-level failures become failed or failed_validation.
func (p *Pipeline) Run(ctx context.Context, job Job, r io.Reader, progress ProgressFunc) models.SessionOutcome {
	log := p.logger.WithFields(logrus.Fields{
		"session_id": job.SessionID,
		"tenant_id":  job.TenantID,
		"load_type":  job.LoadType,
	})
	started := time.Now()

	agg := NewAggregator()
	err := p.run(ctx, job, r, agg, progress, log)
	if err != nil {
		var fatal *FatalError
		if !errors.As(err, &fatal) {
			fatal = Fatal("unexpected data load failure", err)
		}
		log.WithError(err).WithField("status", fatal.Status).Error("Data load aborted")
		return models.SessionOutcome{Status: fatal.Status, Message: fatal.Error()}
	}

	outcome := agg.Outcome()
	log.WithFields(logrus.Fields{
		"status":      outcome.Status,
		"records":     outcome.RecordCount,
		"errors":      outcome.ErrorCount,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Data load finished")
	return outcome
}

func (p *Pipeline) run(ctx context.Context, job Job, r io.Reader, agg *Aggregator, progress ProgressFunc, log *logrus.Entry) error {
	schema, err := SchemaFor(job.LoadType)
	if err != nil {
		return Fatal(fmt.Sprintf("unsupported load type %q", job.LoadType), err)
	}
	format, ok := FormatFromFilename(job.Filename)
	if !ok {
		return InvalidFile(fmt.Sprintf("unsupported file type %q, expected .csv or .xlsx", job.Filename), nil)
	}
	table, err := ReadTable(r, format)
	if err != nil {
		return err
	}
	if err := schema.CheckHeader(table.Headers); err != nil {
		return err
	}
	if len(table.Rows) == 0 {
		return nil
	}

	engine := NewEngine(job.TenantID, job.SubmittedBy, p.now)
	seen := make(map[string]int)

	err = p.store.Transaction(ctx, func(tx CatalogStore) error {
		for _, row := range table.Rows {
			errs, err := p.processRow(ctx, tx, engine, job.LoadType, schema, row, seen)
			if err != nil {
				return err
			}
			if len(errs) > 0 {
				log.WithFields(logrus.Fields{"row": row.Number, "errors": len(errs)}).Debug("Row rejected")
			}
			agg.Record(errs...)
			if progress != nil && p.progressEvery > 0 && agg.RecordCount()%p.progressEvery == 0 {
				progress(ctx, agg.RecordCount(), agg.ErrorCount())
			}
		}
		return nil
	})
	if err != nil {
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal
		}
		return Fatal("failed to commit catalog changes", err)
	}
	return nil
}

// processRow returns the row's errors, or an error when the whole job must stop.
func (p *Pipeline) processRow(ctx context.Context, store CatalogStore, engine *Engine, lt models.LoadType, schema *Schema, row Row, seen map[string]int) ([]models.RowError, error) {
	rec, errs := p.decoder.Decode(lt, row)
	if len(errs) > 0 {
		return errs, nil
	}

	if key := rec.NaturalKey(); key != "" {
		if first, dup := seen[key]; dup {
			return []models.RowError{models.NewRowError(row.Number, schema.KeyField, models.ErrorKindValidation,
				fmt.Sprintf("duplicate key %q, first seen on row %d", key, first), key)}, nil
		}
		seen[key] = row.Number
	}

	// Row SQL runs under the job context: the store bounds each statement
	// server-side and the row budget is checked once its writes are done.
	started := time.Now()
	err := store.Transaction(ctx, func(rs CatalogStore) error {
		if err := engine.Apply(ctx, rs, row.Number, rec); err != nil {
			return err
		}
		if p.rowTimeout > 0 && time.Since(started) > p.rowTimeout {
			return ErrRowTimeout
		}
		return nil
	})
	if err == nil {
		engine.Commit()
		return nil, nil
	}
	engine.Discard()

	var failure *RowFailure
	if errors.As(err, &failure) {
		return failure.Errors, nil
	}
	return classifyWriteError(row.Number, err)
}
