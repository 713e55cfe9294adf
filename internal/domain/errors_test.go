package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrNotFound, "Filter not found", 404, nil)
	assert.Equal(t, "NOT_FOUND: Filter not found", err.Error())

	cause := errors.New("permission denied")
	wrapped := NewAppErrorWithCause(ErrInternal, "Failed to write settings", 500, cause, nil)
	assert.Equal(t, "INTERNAL_ERROR: Failed to write settings (caused by: permission denied)", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestAppError_WithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	err := NewAppError(ErrConflict, "Filter is already imported", 409, nil).WithContext(ctx, "adopt")
	assert.Equal(t, "req-1", err.RequestID)
	assert.Equal(t, "adopt", err.Operation)

	plain := NewAppError(ErrConflict, "x", 409, nil).WithContext(context.Background(), "adopt")
	assert.Empty(t, plain.RequestID)
}

func TestCode(t *testing.T) {
	err := NewAppError(ErrSourceMissing, "Filter file not found", 404, nil)
	assert.Equal(t, ErrSourceMissing, Code(err))
	assert.Equal(t, ErrSourceMissing, Code(fmt.Errorf("import: %w", err)))
	assert.Empty(t, Code(errors.New("plain")))
	assert.Empty(t, Code(nil))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		code string
		is   func(error) bool
		want bool
	}{
		{ErrNotFound, IsNotFound, true},
		{ErrSourceMissing, IsNotFound, true},
		{ErrConflict, IsNotFound, false},
		{ErrValidationFailed, IsValidationError, true},
		{ErrOffsetOutOfRange, IsValidationError, true},
		{ErrConflict, IsConflict, true},
		{ErrSessionActive, IsConflict, true},
		{ErrNoSession, IsConflict, false},
		{ErrTimeout, IsTimeout, true},
		{ErrSchemaMismatch, IsSchemaMismatch, true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewAppError(tt.code, "msg", 400, nil))
			assert.Equal(t, tt.want, tt.is(err))
		})
	}
	assert.False(t, IsNotFound(errors.New("not found")))
}
