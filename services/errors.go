package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind classifies a ServiceError; the value doubles as the API error code
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindUnauthenticated    ErrorKind = "UNAUTHENTICATED"
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindAccountSuspended   ErrorKind = "ACCOUNT_SUSPENDED"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindConflict           ErrorKind = "CONFLICT"
	KindRateLimited        ErrorKind = "RATE_LIMITED"
	KindInternal           ErrorKind = "INTERNAL_ERROR"
)

// ServiceError is returned by every service operation that fails
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError of the same kind, so errors.Is(err, ErrForbidden)
// works regardless of message.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrValidation         = &ServiceError{Kind: KindValidation}
	ErrNotFound           = &ServiceError{Kind: KindNotFound}
	ErrForbidden          = &ServiceError{Kind: KindForbidden}
	ErrUnauthenticated    = &ServiceError{Kind: KindUnauthenticated}
	ErrInvalidCredentials = &ServiceError{Kind: KindInvalidCredentials}
	ErrAccountSuspended   = &ServiceError{Kind: KindAccountSuspended}
	ErrInvalidTransition  = &ServiceError{Kind: KindInvalidTransition}
	ErrConflict           = &ServiceError{Kind: KindConflict}
	ErrRateLimited        = &ServiceError{Kind: KindRateLimited}
	ErrInternal           = &ServiceError{Kind: KindInternal}
)

func newError(kind ErrorKind, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func internalError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the kind of err, treating foreign errors as internal
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err
func MessageOf(err error) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "An unexpected error occurred"
}

// isUniqueViolation recognises unique constraint failures from postgres and sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// isForeignKeyViolation reports whether err is an insert that references a row
// which no longer exists
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}

// asServiceError passes ServiceErrors through and wraps anything else as Internal
func asServiceError(err error, message string) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return internalError(message, err)
}

// lookupError maps a gorm lookup failure to NotFound or Internal
func lookupError(err error, entity string) *ServiceError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "%s not found", entity)
	}
	return internalError("failed to load "+entity, err)
}
