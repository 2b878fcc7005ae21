// Package errors provides a structured error system for mediacache with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for mediacache operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Connection Errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage Errors (origin store, cache volumes)
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"
	ErrCodeCopyFailed     ErrorCode = "COPY_FAILED"
	ErrCodeDeleteFailed   ErrorCode = "DELETE_FAILED"

	// Filesystem Errors
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodePathInvalid      ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodeScanFailed       ErrorCode = "SCAN_FAILED"
	ErrCodeStatfsFailed     ErrorCode = "STATFS_FAILED"

	// Capacity Errors
	ErrCodeCapacityExhausted ErrorCode = "CAPACITY_EXHAUSTED"
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// Ledger Errors
	ErrCodeLedgerRead    ErrorCode = "LEDGER_READ"
	ErrCodeLedgerWrite   ErrorCode = "LEDGER_WRITE"
	ErrCodeLedgerCorrupt ErrorCode = "LEDGER_CORRUPT"

	// Access Log Errors
	ErrCodeFeedRead        ErrorCode = "FEED_READ"
	ErrCodeFeedUnavailable ErrorCode = "FEED_UNAVAILABLE"
	ErrCodeMalformedEvent  ErrorCode = "FEED_MALFORMED_EVENT"

	// State Errors
	ErrCodeAlreadyRunning     ErrorCode = "ALREADY_RUNNING"
	ErrCodeOriginProtected    ErrorCode = "ORIGIN_PROTECTED"
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// Operation Errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryCapacity      ErrorCategory = "capacity"
	CategoryLedger        ErrorCategory = "ledger"
	CategoryFeed          ErrorCategory = "feed"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	RunID     string `json:"run_id,omitempty"`

	Retryable bool `json:"retryable"`
	Fatal     bool `json:"fatal"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CacheError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("RunID=%s", e.RunID))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if e.Fatal {
		parts = append(parts, "Fatal=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CacheError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *CacheError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new error with default values for its code.
func NewError(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
		Fatal:     IsFatalByDefault(code),
	}
}

// Newf is NewError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error carrying cause.
func Wrap(cause error, code ErrorCode, message string) *CacheError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "MISSING_CONFIG") ||
		strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "OBJECT_") || strings.HasPrefix(codeStr, "STORAGE_") ||
		strings.HasPrefix(codeStr, "ACCESS_") || strings.HasPrefix(codeStr, "COPY_") ||
		strings.HasPrefix(codeStr, "DELETE_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "PERMISSION_") || strings.HasPrefix(codeStr, "PATH_") ||
		strings.HasPrefix(codeStr, "FILE_") || strings.HasPrefix(codeStr, "SCAN_") ||
		strings.HasPrefix(codeStr, "STATFS_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "CAPACITY_") || strings.HasPrefix(codeStr, "RESOURCE_"):
		return CategoryCapacity
	case strings.HasPrefix(codeStr, "LEDGER_"):
		return CategoryLedger
	case strings.HasPrefix(codeStr, "FEED_"):
		return CategoryFeed
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "ORIGIN_") ||
		strings.HasPrefix(codeStr, "INVARIANT_"):
		return CategoryState
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "RETRY_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout: true,
		ErrCodeConnectionFailed:  true,
		ErrCodeNetworkError:      true,
		ErrCodeOperationTimeout:  true,
		ErrCodeStorageRead:       true,
	}
	return retryableCodes[code]
}

// IsFatalByDefault reports whether an error code aborts a whole run.
func IsFatalByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeOriginProtected, ErrCodeInvariantViolation:
		return true
	}
	return false
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *CacheError) WithContext(key, value string) *CacheError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *CacheError) WithDetail(key string, value interface{}) *CacheError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CacheError) WithComponent(component string) *CacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CacheError) WithOperation(operation string) *CacheError {
	e.Operation = operation
	return e
}

// WithRunID tags the error with the run that produced it
func (e *CacheError) WithRunID(runID string) *CacheError {
	e.RunID = runID
	return e
}

// WithCause sets the underlying cause
func (e *CacheError) WithCause(cause error) *CacheError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *CacheError) WithStack() *CacheError {
	e.Stack = CaptureStack(2)
	return e
}

// HasCode reports whether err or any error it wraps is a CacheError with code.
func HasCode(err error, code ErrorCode) bool {
	var cacheErr *CacheError
	for err != nil {
		if errors.As(err, &cacheErr) {
			if cacheErr.Code == code {
				return true
			}
			err = cacheErr.Cause
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the outermost CacheError in err's chain, or ErrCodeUnknownError.
func CodeOf(err error) ErrorCode {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Code
	}
	return ErrCodeUnknownError
}

// IsFatal reports whether err (or anything it wraps) must abort the run.
func IsFatal(err error) bool {
	var cacheErr *CacheError
	for err != nil {
		if !errors.As(err, &cacheErr) {
			return false
		}
		if cacheErr.Fatal {
			return true
		}
		err = cacheErr.Cause
	}
	return false
}

// IsRetryable reports whether err is a CacheError marked retryable.
func IsRetryable(err error) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Retryable
	}
	return false
}
