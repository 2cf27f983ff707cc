package datasheet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	err := NewConflictError("verify", "cannot verify document in status %s", StatusApproved)

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"redis nil", redis.Nil, KindNotFound},
		{"wrapped redis nil", fmt.Errorf("lookup: %w", redis.Nil), KindNotFound},
		{"plain error", errors.New("boom"), KindInternal},
		{"validation", NewValidationError("op", "bad"), KindValidation},
		{"corrupt", NewCorruptError("op", "bad snapshot", errors.New("eof")), KindCorrupt},
		{"unauthorized", NewUnauthorizedError("op", "no actor"), KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessageIncludesIssuesAndCause(t *testing.T) {
	err := &Error{
		Kind:    KindValidation,
		Op:      "create document",
		Message: "layout failed validation",
		Issues:  []Issue{{Path: "header.name", Message: "is required"}},
		Err:     errors.New("underlying"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "create document: layout failed validation")
	assert.Contains(t, msg, "header.name: is required")
	assert.Contains(t, msg, "underlying")
	assert.Equal(t, "underlying", errors.Unwrap(err).Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(redis.Nil))
	assert.True(t, IsNotFound(NewNotFoundError("get", "document %s not found", "x")))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.False(t, IsNotFound(nil))
}
