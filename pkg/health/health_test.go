package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, fn http.HandlerFunc, path string) (int, statusResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fn(rec, req)

	var body statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("no checks is healthy", func(t *testing.T) {
		h := New()
		code, body := probe(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("failing check reports unhealthy", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("always-fails", func(context.Context) error {
			return errors.New("boom")
		})

		code, body := probe(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "boom", body.Checks["always-fails"])
	})

	t.Run("checks run at probe time", func(t *testing.T) {
		h := New()
		healthy := false
		h.AddLivenessCheck("flaky", func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("not yet")
		})

		code, _ := probe(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusServiceUnavailable, code)

		healthy = true
		code, _ = probe(t, h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, code)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("not ready until marked", func(t *testing.T) {
		h := New()

		code, body := probe(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks, "_readiness")

		h.SetReady(true)
		code, body = probe(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
	})

	t.Run("drain flips readiness back off", func(t *testing.T) {
		h := New()
		h.SetReady(true)
		h.SetReady(false)

		code, _ := probe(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.False(t, h.IsReady())
	})

	t.Run("failing dependency reports unhealthy even when ready", func(t *testing.T) {
		h := New()
		h.SetReady(true)
		h.AddReadinessCheck("db", time.Second, func(context.Context) error {
			return errors.New("connection refused")
		})

		code, body := probe(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "connection refused", body.Checks["db"])
	})

	t.Run("check times out", func(t *testing.T) {
		h := New()
		h.SetReady(true)
		h.AddReadinessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		})

		code, body := probe(t, h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Checks["slow"], "deadline")
	})
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
