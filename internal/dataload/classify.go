package dataload

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"dataload-service/internal/models"
)

// classifyWriteError turns a failed row write into CONFLICT row errors, or into a
// *FatalError when the store itself is no longer usable.
func classifyWriteError(row int, err error) ([]models.RowError, error) {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return nil, fatal
	}
	if isStoreUnavailable(err) {
		return nil, Fatal("catalog storage unavailable", err)
	}
	return []models.RowError{
		models.NewRowError(row, conflictField(err), models.ErrorKindConflict, conflictMessage(err), ""),
	}, nil
}

func isStoreUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case strings.HasPrefix(pgErr.Code, "57P"): // admin shutdown, crash shutdown
			return true
		case pgErr.Code == "3D000", pgErr.Code == "3F000": // database or schema missing
			return true
		case pgErr.Code == "42P01": // table missing
			return true
		case pgErr.Code == "25P02": // transaction aborted
			return true
		}
	}
	return false
}

// isTimeout covers the caller's deadline, the row budget, and the server-side
// statement_timeout (57014) and lock_timeout (55P03).
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRowTimeout) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "57014" || pgErr.Code == "55P03")
}

func conflictField(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ColumnName
	}
	return ""
}

func conflictMessage(err error) string {
	if isTimeout(err) {
		return "write timed out"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Sprintf("unique constraint %s violated: %s", pgErr.ConstraintName, pgErr.Detail)
		case "23503":
			return fmt.Sprintf("foreign key constraint %s violated: %s", pgErr.ConstraintName, pgErr.Detail)
		case "23502":
			return fmt.Sprintf("column %s must not be null", pgErr.ColumnName)
		case "23514":
			return fmt.Sprintf("check constraint %s violated", pgErr.ConstraintName)
		}
		return fmt.Sprintf("storage rejected row: %s (%s)", pgErr.Message, pgErr.Code)
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "duplicate key: a record with the same key already exists"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return "foreign key violated: a referenced record does not exist"
	}
	return "write failed: " + err.Error()
}
