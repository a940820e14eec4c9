package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Common database error types that can be used by consumers of this package.
var (
	// ErrRecordNotFound is returned when a query doesn't find any matching records
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert or update violates a unique constraint
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKey is returned when an operation violates a foreign key constraint
	ErrForeignKey = errors.New("foreign key violation")

	// ErrInvalidData is returned when the data being saved doesn't meet validation rules
	ErrInvalidData = errors.New("invalid data")
)

// SQLSTATE codes the engine reacts to.
const (
	CodeLockNotAvailable = "55P03"
	CodeDeadlockDetected = "40P01"
	CodeUniqueViolation  = "23505"
	CodeUndefinedTable   = "42P01"
	CodeAdminShutdown    = "57P01"
	CodeCrashShutdown    = "57P02"
	CodeCannotConnectNow = "57P03"

	// connectionExceptionClass covers 08000-08P01.
	connectionExceptionClass = "08"
)

// TranslateError converts GORM/database-specific errors into the package sentinels.
// Errors that match none are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case IsDuplicateKey(err):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	case errors.Is(err, gorm.ErrInvalidData):
		return ErrInvalidData
	}
	return err
}

// SQLState returns the SQLSTATE of a server error anywhere in err's chain.
func SQLState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// IsLockNotAvailable reports a failed NOWAIT row lock.
func IsLockNotAvailable(err error) bool {
	code, ok := SQLState(err)
	return ok && code == CodeLockNotAvailable
}

// IsLockContention reports errors that go away once a competing transaction finishes.
func IsLockContention(err error) bool {
	code, ok := SQLState(err)
	return ok && (code == CodeLockNotAvailable || code == CodeDeadlockDetected)
}

// IsDuplicateKey reports a unique constraint violation, translated by gorm or not.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	code, ok := SQLState(err)
	return ok && code == CodeUniqueViolation
}

// IsUndefinedTable reports a statement against a table that does not exist.
func IsUndefinedTable(err error) bool {
	code, ok := SQLState(err)
	return ok && code == CodeUndefinedTable
}

// IsConnectionError reports errors caused by a broken or closed connection
// rather than by the statement itself. Such reads may be retried on a fresh pool.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if code, ok := SQLState(err); ok {
		return strings.HasPrefix(code, connectionExceptionClass) ||
			code == CodeAdminShutdown ||
			code == CodeCrashShutdown ||
			code == CodeCannotConnectNow
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// database/sql and pgx do not export these.
	msg := err.Error()
	return strings.Contains(msg, "sql: database is closed") || strings.Contains(msg, "conn closed")
}
