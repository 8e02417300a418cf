package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/httpusers/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   Code
		status int
	}{
		{"not authorized", NotAuthorized("x"), CodeNotAuthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), CodeForbidden, http.StatusForbidden},
		{"not found", NotFound("x"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("x"), CodeValidation, http.StatusBadRequest},
		{"conflict", Conflict("x"), CodeConflict, http.StatusConflict},
		{"internal", Internal("x"), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, "x", tt.err.Error())
		})
	}
}

func TestFromError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, FromError(nil))
	})

	t.Run("wrapped api error", func(t *testing.T) {
		err := fmt.Errorf("failed to load: %w", Forbidden("nope"))
		got := FromError(err)
		assert.Equal(t, CodeForbidden, got.Code)
		assert.Equal(t, "nope", got.Message)
	})

	t.Run("storage not found", func(t *testing.T) {
		err := fmt.Errorf("user/bob: %w", storage.ErrNotFound)
		got := FromError(err)
		assert.Equal(t, http.StatusNotFound, got.StatusCode)
	})

	t.Run("storage conflict", func(t *testing.T) {
		got := FromError(storage.ErrConflict)
		assert.Equal(t, http.StatusConflict, got.StatusCode)
	})

	t.Run("unknown error hides message", func(t *testing.T) {
		got := FromError(errors.New("dial tcp: connection refused"))
		assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
		assert.Equal(t, "internal server error", got.Message)
	})
}

func TestIs(t *testing.T) {
	assert.True(t, Is(NotFound("x"), CodeNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", storage.ErrNotFound)))
	assert.True(t, Is(storage.ErrConflict, CodeConflict))
	assert.False(t, Is(errors.New("plain"), CodeNotFound))
	assert.False(t, Is(Forbidden("x"), CodeNotFound))
}

func TestWrite(t *testing.T) {
	w := httptest.NewRecorder()
	Forbidden("Missing permissions: search").Write(w)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Missing permissions: search", body["error"])
	assert.Equal(t, string(CodeForbidden), body["code"])
}
