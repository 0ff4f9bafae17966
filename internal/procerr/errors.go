// Package procerr defines the error taxonomy shared by the registry,
// loaders, mapping cache, and dispatcher. Callers branch on these kinds with
// errors.As, so every dispatch-time failure keeps its classification all the
// way up the stack.
package procerr

import (
	"fmt"
	"strings"
)

// Execution failure codes attached to ExecutionError.
const (
	CodeExecFailed   = "EXEC_FAILED"
	CodeExecTimeout  = "EXEC_TIMEOUT"
	CodeExecCanceled = "EXEC_CANCELED"
)

// NotFoundError reports that a process id (or a specific version of it) is
// absent from the registry or from a loader's source.
type NotFoundError struct {
	ProcessID string
	Version   string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("process %q version %q not found", e.ProcessID, e.Version)
	}
	return fmt.Sprintf("process %q not found", e.ProcessID)
}

// NewNotFound builds a NotFoundError. version may be empty.
func NewNotFound(processID, version string) *NotFoundError {
	return &NotFoundError{ProcessID: processID, Version: version}
}

// InvalidDescriptorError reports a malformed or unsupported explicit load
// request. This is always the caller's fault and never retried.
type InvalidDescriptorError struct {
	Reason string
}

func (e *InvalidDescriptorError) Error() string {
	return "invalid plugin descriptor: " + e.Reason
}

// NewInvalidDescriptor builds an InvalidDescriptorError.
func NewInvalidDescriptor(reason string) *InvalidDescriptorError {
	return &InvalidDescriptorError{Reason: reason}
}

// UnauthorizedError reports that the authorization gate denied a dispatch.
// Missing lists the capabilities the session lacked, prefixed by class
// (e.g. "permission:refund.write").
type UnauthorizedError struct {
	ProcessID string
	Missing   []string
}

func (e *UnauthorizedError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("unauthorized to execute process %q", e.ProcessID)
	}
	return fmt.Sprintf("unauthorized to execute process %q: missing %s",
		e.ProcessID, strings.Join(e.Missing, ", "))
}

// ExecutionError wraps a plugin invocation failure with a stable code/message
// pair for observability. The original cause is preserved via Unwrap.
type ExecutionError struct {
	ProcessID string
	Version   string
	Code      string
	Message   string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s@%s failed [%s]: %s", e.ProcessID, e.Version, e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NewExecutionFailure wraps cause as an ExecutionError.
func NewExecutionFailure(processID, version, code string, cause error) *ExecutionError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ExecutionError{
		ProcessID: processID,
		Version:   version,
		Code:      code,
		Message:   msg,
		Err:       cause,
	}
}

// InitializationError is fatal: the hosting process must not come up serving
// traffic when startup fails.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return "runtime initialization failed: " + e.Err.Error()
}

func (e *InitializationError) Unwrap() error { return e.Err }

// NewInitializationFailure wraps cause as an InitializationError.
func NewInitializationFailure(cause error) *InitializationError {
	return &InitializationError{Err: cause}
}

// UnavailableError reports a dispatch attempted while the runtime is not
// running (still starting, stopping, or stopped).
type UnavailableError struct {
	State string
}

func (e *UnavailableError) Error() string {
	return "runtime not accepting dispatches (state: " + e.State + ")"
}
