// Package errors provides centralized error definitions and error handling utilities
// for botdas. It defines domain-specific errors, semantic error types, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of a specific subsystem:
//   - HTTPError: a non-success response from the hosting platform or an agent
//   - StageError: a pipeline stage (plan, parse, codemod) failed fatally
//   - PublishError: pull request publication failed
//   - TreeError: the repository tree could not be fetched
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
//	err := errors.NewHTTPError("agent", http.MethodPost, url, 502, body)
//	err = errors.NewStageError("codemod", err)
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
//
//	status := errors.StatusCode(err) // HTTP status for API responses
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Remote call sentinel errors. HTTPError matches these through Is based on
// its status code and body.
var (
	// ErrNotFound indicates the remote resource does not exist (HTTP 404).
	ErrNotFound = New("resource not found")
	// ErrAuthRequired indicates missing or rejected credentials (HTTP 401/403).
	ErrAuthRequired = New("authentication required")
	// ErrAlreadyExists indicates the remote resource already exists.
	ErrAlreadyExists = New("resource already exists")
	// ErrRateLimited indicates the remote service throttled the request.
	ErrRateLimited = New("rate limited")
)

// Pipeline sentinel errors
var (
	// ErrMaxDepth indicates tree traversal reached the depth bound.
	ErrMaxDepth = New("maximum traversal depth exceeded")
	// ErrNoChanges indicates there was nothing to publish.
	ErrNoChanges = New("no file changes to publish")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BotdasError is the base interface for all botdas errors.
type BotdasError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// maxBodyInError bounds how much of a response body is kept in HTTPError.Error().
const maxBodyInError = 512

// HTTPError represents a non-success response from a remote service.
// The full body is kept on the struct; Error() truncates it.
//
// Example:
//
//	err := errors.NewHTTPError("github", "GET", url, 404, body)
//	fmt.Println(err) // "github GET https://... returned 404: {"message":"Not Found"}"
type HTTPError struct {
	baseError
	Service    string
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// NewHTTPError creates a new HTTPError. 5xx and 429 responses are retryable.
func NewHTTPError(service, method, url string, status int, body []byte) *HTTPError {
	return &HTTPError{
		baseError: baseError{
			message:    "unexpected status",
			severity:   SeverityError,
			retryable:  status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
			userFacing: false,
		},
		Service:    service,
		Method:     method,
		URL:        url,
		StatusCode: status,
		Body:       string(body),
	}
}

// Error returns the formatted error message.
func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	msg := fmt.Sprintf("%s %s %s returned %d", e.Service, e.Method, e.URL, e.StatusCode)
	if body != "" {
		msg += ": " + body
	}
	return msg
}

// Is matches *HTTPError targets and the status-derived sentinels.
func (e *HTTPError) Is(target error) bool {
	if _, ok := target.(*HTTPError); ok {
		return true
	}
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrAuthRequired:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrAlreadyExists:
		return e.indicatesExists()
	}
	return e.baseError.Is(target)
}

// indicatesExists reports whether the response is a conflict about a
// resource that already exists.
func (e *HTTPError) indicatesExists() bool {
	switch e.StatusCode {
	case http.StatusConflict, http.StatusBadRequest, http.StatusUnprocessableEntity:
		return strings.Contains(strings.ToLower(e.Body), "already exists")
	}
	return false
}

// StageError represents a fatal failure of a pipeline stage.
//
// Example:
//
//	err := errors.NewStageError("parse", httpErr)
//	fmt.Println(err) // "stage parse failed: agent POST ... returned 500"
type StageError struct {
	baseError
	Stage string
}

// NewStageError creates a new StageError.
func NewStageError(stage string, cause error) *StageError {
	return &StageError{
		baseError: baseError{
			message:    "failed",
			cause:      cause,
			severity:   SeverityError,
			retryable:  IsRetryable(cause),
			userFacing: true,
		},
		Stage: stage,
	}
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("stage %s %s: %v", e.Stage, e.message, e.cause)
	}
	return fmt.Sprintf("stage %s %s", e.Stage, e.message)
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PublishError represents a failure while publishing a pull request.
//
// Example:
//
//	err := errors.NewPublishError("create branch", cause).WithBranch("botdas/upgrade-next-1")
type PublishError struct {
	baseError
	Step   string
	Branch string
}

// NewPublishError creates a new PublishError for the given step.
func NewPublishError(step string, cause error) *PublishError {
	return &PublishError{
		baseError: baseError{
			message:    "publish failed",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  IsRetryable(cause),
			userFacing: true,
		},
		Step: step,
	}
}

// WithBranch adds the branch name to the error context.
func (e *PublishError) WithBranch(branch string) *PublishError {
	e.Branch = branch
	return e
}

// Error returns the formatted error message.
func (e *PublishError) Error() string {
	var parts []string
	if e.Step != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.Step))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}

	prefix := e.message
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", e.message, strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Is checks if this error matches the target.
func (e *PublishError) Is(target error) bool {
	if _, ok := target.(*PublishError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TreeError represents a failure fetching a repository tree at a path.
type TreeError struct {
	baseError
	Repository string
	Path       string
}

// NewTreeError creates a new TreeError.
func NewTreeError(repository, path string, cause error) *TreeError {
	return &TreeError{
		baseError: baseError{
			message:    "fetch tree",
			cause:      cause,
			severity:   SeverityError,
			retryable:  IsRetryable(cause),
			userFacing: true,
		},
		Repository: repository,
		Path:       path,
	}
}

// Error returns the formatted error message.
func (e *TreeError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s %s:%s: %v", e.message, e.Repository, path, e.cause)
	}
	return fmt.Sprintf("%s %s:%s", e.message, e.Repository, path)
}

// Is checks if this error matches the target.
func (e *TreeError) Is(target error) bool {
	if _, ok := target.(*TreeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("branch", "main")
//	fmt.Println(err) // "branch 'main' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is matches *NotFoundError and ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("is required").WithField("targetPackage")
//	fmt.Println(err) // "validation failed for targetPackage: is required"
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField sets the field that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed")
	if e.Field != "" {
		sb.WriteString(" for ")
		sb.WriteString(e.Field)
	}
	sb.WriteString(": ")
	sb.WriteString(e.message)
	if e.Value != nil {
		fmt.Fprintf(&sb, " (got: %v)", e.Value)
	}
	if e.cause != nil {
		fmt.Fprintf(&sb, ": %v", e.cause)
	}
	return sb.String()
}

// Is matches *ValidationError and ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that exceeded its deadline.
//
// Example:
//
//	err := errors.NewTimeoutError("planner run", 5*time.Minute)
//	fmt.Println(err) // "planner run timed out after 5m0s"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    fmt.Sprintf("%s timed out after %v", operation, duration),
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return e.message
}

// Is matches *TimeoutError and ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var botdasErr BotdasError
	if As(err, &botdasErr) {
		return botdasErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var botdasErr BotdasError
	if As(err, &botdasErr) {
		return botdasErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BotdasError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var botdasErr BotdasError
	if As(err, &botdasErr) {
		return botdasErr.Severity()
	}
	return SeverityError
}

// StatusCode maps an error to the HTTP status the API should answer with.
// Validation failures are 400; every other failure upstream of publishing is 500.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
