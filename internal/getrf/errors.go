package getrf

import (
	"errors"
	"fmt"
)

// GraphError represents an error while building or tearing down a graph.
type GraphError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// ErrorCode represents the type of graph error.
type ErrorCode string

const (
	// ErrCodeAllocation indicates a workspace or descriptor could not be
	// allocated.
	ErrCodeAllocation ErrorCode = "ALLOCATION_FAILURE"
	// ErrCodeDuplicateRegistration indicates an arena role was registered
	// twice on one graph.
	ErrCodeDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"
	// ErrCodeLifecycle indicates a lifecycle operation out of order.
	ErrCodeLifecycle ErrorCode = "LIFECYCLE_VIOLATION"
	// ErrCodeGridMismatch indicates P*Q disagrees with the distribution.
	ErrCodeGridMismatch ErrorCode = "GRID_MISMATCH"
	// ErrCodeInvalidArgument indicates malformed inputs.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GraphError) Unwrap() error {
	return e.Cause
}

// NewGraphError creates a new GraphError.
func NewGraphError(code ErrorCode, message string, cause error) *GraphError {
	return &GraphError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func newGridMismatchError(format string, args ...any) *GraphError {
	return &GraphError{
		Code:    ErrCodeGridMismatch,
		Message: fmt.Sprintf(format, args...),
	}
}

func newInvalidArgumentError(format string, args ...any) *GraphError {
	return &GraphError{
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

func newLifecycleError(message string, cause error) *GraphError {
	return &GraphError{
		Code:    ErrCodeLifecycle,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first GraphError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}

// IsAllocationFailure checks if the error is an allocation failure.
func IsAllocationFailure(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeAllocation
}

// IsLifecycleViolation checks if the error is a lifecycle violation.
func IsLifecycleViolation(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeLifecycle
}

// IsGridMismatch checks if the error is a grid mismatch.
func IsGridMismatch(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeGridMismatch
}

// IsDuplicateRegistration checks if the error is a duplicate arena
// registration.
func IsDuplicateRegistration(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrCodeDuplicateRegistration
}

// Status values returned alongside a nil graph.
const (
	StatusOK          = 0
	StatusBuildFailed = -1
)
