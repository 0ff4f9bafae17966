package procerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("refund", "")
	assert.Equal(t, `process "refund" not found`, err.Error())
	assert.True(t, IsNotFound(err))

	withVersion := NewNotFound("refund", "2.0.0")
	assert.Contains(t, withVersion.Error(), `version "2.0.0"`)
}

func TestKindChecksSurviveWrapping(t *testing.T) {
	base := NewNotFound("opX", "")
	wrapped := fmt.Errorf("lookup: %w", base)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsUnauthorized(wrapped))
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("downstream exploded")
	err := NewExecutionFailure("refund", "2.0.0", CodeExecFailed, cause)

	assert.True(t, IsExecutionFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeExecFailed, err.Code)
	assert.Equal(t, "downstream exploded", err.Message)
}

func TestUnauthorizedErrorListsMissing(t *testing.T) {
	err := &UnauthorizedError{ProcessID: "refund", Missing: []string{"permission:refund.write", "role:ops"}}
	assert.Contains(t, err.Error(), "permission:refund.write")
	assert.Contains(t, err.Error(), "role:ops")
	assert.True(t, IsUnauthorized(err))
}

func TestInitializationErrorIsDistinct(t *testing.T) {
	err := NewInitializationFailure(errors.New("loader hung"))
	assert.True(t, IsInitializationFailure(err))
	assert.False(t, IsExecutionFailure(err))
	assert.Contains(t, err.Error(), "loader hung")
}

func TestUnavailableError(t *testing.T) {
	err := &UnavailableError{State: "starting"}
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "starting")
}
