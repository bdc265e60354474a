package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorFormatting verifies the rendered message with and without a cause.
func TestErrorFormatting(t *testing.T) {
	err := New(ErrStorage, "failed to enqueue operation")
	assert.Equal(t, "[STORAGE_ERROR] failed to enqueue operation", err.Error())

	cause := errors.New("disk I/O error")
	wrapped := Wrap(ErrStorage, "failed to enqueue operation", cause)
	assert.Equal(t, "[STORAGE_ERROR] failed to enqueue operation: disk I/O error", wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

// TestIs verifies code matching on app errors and plain errors.
func TestIs(t *testing.T) {
	err := New(ErrTenantMismatch, "record belongs to another tenant")
	assert.True(t, Is(err, ErrTenantMismatch))
	assert.False(t, Is(err, ErrStorage))
	assert.False(t, Is(errors.New("plain"), ErrStorage))
	assert.False(t, Is(nil, ErrStorage))
}

// TestCodeOf verifies code extraction with the internal fallback.
func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrClient, CodeOf(New(ErrClient, "returned 422")))
	assert.Equal(t, ErrInternal, CodeOf(errors.New("plain")))
}
