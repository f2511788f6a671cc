package models

// ErrorKind classifies a row-level or job-level failure.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindReference  ErrorKind = "REFERENCE"
	ErrorKindConflict   ErrorKind = "CONFLICT"
	ErrorKindFatal      ErrorKind = "FATAL"
)

// MaxOffendingValueLength caps the offending value stored with a row error.
const MaxOffendingValueLength = 255

// RowError is one recoverable failure attached to a file row.
type RowError struct {
	RowNumber      int       `json:"row_number"`
	FieldName      *string   `json:"field_name"`
	ErrorMessage   string    `json:"error_message"`
	ErrorKind      ErrorKind `json:"error_kind"`
	OffendingValue string    `json:"offending_value,omitempty"`
}

// NewRowError builds a RowError, truncating the offending value. An empty field means "whole row".
func NewRowError(row int, field string, kind ErrorKind, message, offending string) RowError {
	e := RowError{
		RowNumber:      row,
		ErrorMessage:   message,
		ErrorKind:      kind,
		OffendingValue: truncate(offending, MaxOffendingValueLength),
	}
	if field != "" {
		f := field
		e.FieldName = &f
	}
	return e
}

// Field returns the field name or "" for row-wide errors.
func (e RowError) Field() string {
	if e.FieldName == nil {
		return ""
	}
	return *e.FieldName
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
