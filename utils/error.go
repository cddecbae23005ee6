package utils

import (
	"errors"
	"net/http"

	"github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ErrorKind classifies engine failures for transport mapping and retry
// decisions. TransactionFailure is the only retryable kind.
type ErrorKind int

const (
	ErrorKindNotFound ErrorKind = iota
	ErrorKindPreconditionFailed
	ErrorKindBusinessRuleViolation
	ErrorKindConsistencyFailure
	ErrorKindTransactionFailure
)

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFoundError(message string) error {
	return &AppError{Kind: ErrorKindNotFound, Message: message}
}

func PreconditionError(message string) error {
	return &AppError{Kind: ErrorKindPreconditionFailed, Message: message}
}

func BusinessRuleError(message string) error {
	return &AppError{Kind: ErrorKindBusinessRuleViolation, Message: message}
}

func ConsistencyError(message string) error {
	return &AppError{Kind: ErrorKindConsistencyFailure, Message: message}
}

func TransactionError(message string, err error) error {
	return &AppError{Kind: ErrorKindTransactionFailure, Message: message, Err: err}
}

func KindOf(err error) (ErrorKind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return 0, false
}

// StatusCode maps an engine error onto the HTTP boundary. Unknown errors are
// treated as storage failures.
func StatusCode(err error) int {
	if errors.Is(err, ErrorRecordNotFound) {
		return http.StatusNotFound
	}
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindPreconditionFailed, ErrorKindBusinessRuleViolation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsDeadlock reports whether err is a MySQL deadlock (1213) or lock wait
// timeout (1205). Both abort the transaction without applying any writes.
func IsDeadlock(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// Retryable reports whether the caller may safely retry the whole operation.
// Only aborted atomic units qualify; everything else indicates stale or
// invalid client state.
func Retryable(err error) bool {
	if IsDeadlock(err) {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind == ErrorKindTransactionFailure
}
