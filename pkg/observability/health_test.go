package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) error { return nil }
func failing(context.Context) error { return errors.New("down") }

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *HealthChecker)
		expected string
	}{
		{"no dependencies", func(*HealthChecker) {}, StatusHealthy},
		{"all healthy", func(h *HealthChecker) {
			h.Register("store", healthy)
			h.RegisterOptional("cache", healthy)
		}, StatusHealthy},
		{"optional down", func(h *HealthChecker) {
			h.Register("store", healthy)
			h.RegisterOptional("cache", failing)
		}, StatusDegraded},
		{"required down", func(h *HealthChecker) {
			h.Register("store", failing)
			h.RegisterOptional("cache", failing)
		}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.setup(h)
			status := h.Check(context.Background())
			assert.Equal(t, tt.expected, status.Status)
			assert.Equal(t, "test", status.Version)
		})
	}
}

func TestHealthChecker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	h := NewHealthChecker("test")
	h.RegisterOptional("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	assert.Equal(t, StatusHealthy, h.Check(context.Background()).Status)

	mr.Close()
	status := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	assert.NotEmpty(t, status.Dependencies["redis"].Message)
}

func TestHealthChecker_Handlers(t *testing.T) {
	h := NewHealthChecker("test")
	h.Register("store", failing)

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "down", status.Dependencies["store"].Message)
}
