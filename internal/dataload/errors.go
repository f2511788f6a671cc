package dataload

import (
	"errors"
	"fmt"
	"strings"

	"dataload-service/internal/models"
)

var (
	// ErrNotFound is returned by CatalogStore lookups that match nothing.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownLoadType is returned for load types without a schema.
	ErrUnknownLoadType = errors.New("unknown load type")
	// ErrRowTimeout is returned when a row's writes outlast the row budget.
	ErrRowTimeout = errors.New("row exceeded its time budget")
)

// RowFailure carries the row errors that made a row fail. It aborts only that row.
type RowFailure struct {
	Errors []models.RowError
}

func (f *RowFailure) Error() string {
	if len(f.Errors) == 0 {
		return "row failed"
	}
	msgs := make([]string, 0, len(f.Errors))
	for _, e := range f.Errors {
		if field := e.Field(); field != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, e.ErrorMessage))
		} else {
			msgs = append(msgs, e.ErrorMessage)
		}
	}
	return strings.Join(msgs, "; ")
}

func rowFailure(errs ...models.RowError) *RowFailure {
	return &RowFailure{Errors: errs}
}

// FatalError aborts the whole job. Status is failed or failed_validation.
type FatalError struct {
	Status  models.SessionStatus
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error { return e.Err }

// InvalidFile reports a structurally unusable file.
func InvalidFile(message string, err error) *FatalError {
	return &FatalError{Status: models.SessionFailedValidation, Message: message, Err: err}
}

// Fatal reports a failure unrelated to row content.
func Fatal(message string, err error) *FatalError {
	return &FatalError{Status: models.SessionFailed, Message: message, Err: err}
}

// Aggregator collects row errors in row order for one job.
type Aggregator struct {
	errors     []models.RowError
	records    int
	failedRows int
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record registers one processed row and the errors it produced, if any.
func (a *Aggregator) Record(errs ...models.RowError) {
	a.records++
	if len(errs) > 0 {
		a.failedRows++
		a.errors = append(a.errors, errs...)
	}
}

func (a *Aggregator) RecordCount() int { return a.records }

// ErrorCount is the number of row errors, not failed rows.
func (a *Aggregator) ErrorCount() int { return len(a.errors) }

func (a *Aggregator) FailedRows() int { return a.failedRows }

func (a *Aggregator) SucceededRows() int { return a.records - a.failedRows }

// Errors returns a copy of the collected errors in the order they were recorded.
func (a *Aggregator) Errors() []models.RowError {
	out := make([]models.RowError, len(a.errors))
	copy(out, a.errors)
	return out
}

// Status derives the terminal status from what was recorded.
func (a *Aggregator) Status() models.SessionStatus {
	switch {
	case a.records == 0 || a.failedRows == a.records:
		return models.SessionFailedValidation
	case a.failedRows == 0:
		return models.SessionCompleted
	default:
		return models.SessionCompletedWithErrors
	}
}

// Outcome renders the terminal session update.
func (a *Aggregator) Outcome() models.SessionOutcome {
	status := a.Status()
	out := models.SessionOutcome{
		Status:        status,
		RecordCount:   a.records,
		ErrorCount:    len(a.errors),
		SucceededRows: a.SucceededRows(),
		FailedRows:    a.failedRows,
		Errors:        a.Errors(),
	}
	switch {
	case a.records == 0:
		out.Message = "file contains no data rows"
	case a.failedRows == 0:
		out.Message = fmt.Sprintf("%d rows processed successfully", a.records)
	default:
		out.Message = fmt.Sprintf("%d of %d rows failed", a.failedRows, a.records)
	}
	return out
}
