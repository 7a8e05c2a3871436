package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "missing")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	// Wrapped errors keep their kind through fmt.Errorf chains.
	inner := New(KindConflict, "terminal state")
	wrapped := fmt.Errorf("dispatch failed: %w", inner)
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(KindTransient, "timeout")))
	assert.False(t, IsTransient(New(KindValidation, "bad path")))
	assert.False(t, IsTransient(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindTransient, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(New(tt.kind, "x")))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "write version", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
