// Package errors provides structured error types for dmlbench.
// Every error carries a category, code, message, and retryable flag so the
// worker loop can absorb per-iteration failures while setup and reporting
// failures abort the run.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by where in a benchmark run they arise.
type ErrorCategory string

const (
	ErrCategoryAcquire     ErrorCategory = "ACQUIRE"
	ErrCategoryExecution   ErrorCategory = "EXECUTION"
	ErrCategoryConsistency ErrorCategory = "CONSISTENCY"
	ErrCategorySetup       ErrorCategory = "SETUP"
	ErrCategoryReport      ErrorCategory = "REPORT"
	ErrCategoryConfig      ErrorCategory = "CONFIG"
	ErrCategoryInternal    ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Acquire codes
	CodePoolClosed     = "POOL_CLOSED"
	CodeAcquireTimeout = "ACQUIRE_TIMEOUT"
	CodeConnectFailed  = "CONNECT_FAILED"

	// Execution codes
	CodeStatementFailed = "STATEMENT_FAILED"
	CodeTxFailed        = "TX_FAILED"

	// Consistency codes
	CodeNoRowsAffected = "NO_ROWS_AFFECTED"

	// Setup codes
	CodeSchemaFailed  = "SCHEMA_FAILED"
	CodeLoadFailed    = "LOAD_FAILED"
	CodeModeFailed    = "MODE_FAILED"
	CodeClusterFailed = "CLUSTER_FAILED"

	// Report codes
	CodeNoDataInWindow = "NO_DATA_IN_WINDOW"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeArchiveFailed  = "ARCHIVE_FAILED"
	CodeMismatch       = "RESULT_MISMATCH"

	// Config codes
	CodeInvalidValue = "INVALID_VALUE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ErrNoRowsAffected matches any consistency error raised when a write that
// should have touched rows touched none. Use with errors.Is.
var ErrNoRowsAffected = New(ErrCategoryConsistency, CodeNoRowsAffected, "no rows affected")

// ErrNoDataInWindow matches any report error raised for an empty statistics window.
var ErrNoDataInWindow = New(ErrCategoryReport, CodeNoDataInWindow, "no data in window")

// BenchError is the structured error type used throughout the system.
type BenchError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BenchError) WithDetails(details map[string]interface{}) *BenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsFatal reports whether an error must abort the run instead of being
// absorbed into a trial's error counter.
func IsFatal(err error) bool {
	switch GetCategory(err) {
	case ErrCategorySetup, ErrCategoryReport, ErrCategoryConfig, ErrCategoryInternal:
		return true
	default:
		return false
	}
}

// isRetryable reports whether a later iteration can reasonably succeed.
// Consistency errors are expected under concurrent deletes and are not retried.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryAcquire && code == CodeAcquireTimeout:
		return true
	case category == ErrCategoryAcquire && code == CodeConnectFailed:
		return true
	case category == ErrCategoryExecution && code == CodeTxFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewAcquireError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryAcquire, code, message, cause)
}

func NewExecutionError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryExecution, CodeStatementFailed, message, cause)
}

func NewConsistencyError(message string) *BenchError {
	return New(ErrCategoryConsistency, CodeNoRowsAffected, message)
}

func NewSetupError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategorySetup, code, message, cause)
}

func NewReportError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategoryReport, code, message, cause)
}

func NewConfigError(message string) *BenchError {
	return New(ErrCategoryConfig, CodeInvalidValue, message)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
