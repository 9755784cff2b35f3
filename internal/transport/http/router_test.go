package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citywalk/internal/platform/metrics"
	"citywalk/internal/platform/middleware"
	"citywalk/pkg/requestcontext"
	"citywalk/pkg/testutil"
)

type tokenValidator map[string]*middleware.JWTClaims

func (v tokenValidator) ValidateToken(token string) (*middleware.JWTClaims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

type pingModule struct{}

func (pingModule) Register(r chi.Router) {
	r.Get("/admin/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestcontext.ActorID(r.Context())))
	})
}

func newTestRouter(health map[string]HealthCheck) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		AdminRole:      "admin",
		RequestTimeout: time.Second,
		Health:         health,
		Validator: tokenValidator{
			"admin-token":   {Subject: "admin-1", Roles: []string{"admin"}},
			"support-token": {Subject: "support-1", Roles: []string{"support"}},
		},
	}, pingModule{})
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoRequest(h, testutil.WithBearer(testutil.NewRequest(t, http.MethodGet, path), token))
}

func TestRouter_AdminAuth(t *testing.T) {
	h := newTestRouter(nil)

	testutil.AssertStatusAndError(t, get(t, h, "/admin/ping", ""), http.StatusUnauthorized, "unauthorized")
	testutil.AssertStatusAndError(t, get(t, h, "/admin/ping", "forged"), http.StatusUnauthorized, "unauthorized")
	testutil.AssertStatusAndError(t, get(t, h, "/admin/ping", "support-token"), http.StatusForbidden, "forbidden")

	rec := get(t, h, "/admin/ping", "admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Health(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rec := get(t, h, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body healthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
	})

	t.Run("degraded", func(t *testing.T) {
		h := newTestRouter(map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		rec := get(t, h, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "degraded")
	})
}

func TestRouter_Metrics(t *testing.T) {
	h := newTestRouter(nil)
	get(t, h, "/health", "")

	rec := get(t, h, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "citywalk_http_requests_total")
}
