package procerr

import "errors"

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsInvalidDescriptor reports whether err is (or wraps) an InvalidDescriptorError.
func IsInvalidDescriptor(err error) bool {
	var e *InvalidDescriptorError
	return errors.As(err, &e)
}

// IsUnauthorized reports whether err is (or wraps) an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var e *UnauthorizedError
	return errors.As(err, &e)
}

// IsExecutionFailure reports whether err is (or wraps) an ExecutionError.
func IsExecutionFailure(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}

// IsInitializationFailure reports whether err is (or wraps) an InitializationError.
func IsInitializationFailure(err error) bool {
	var e *InitializationError
	return errors.As(err, &e)
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}
