package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmaster-auth/internal/model"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{model.ErrInvalidCredentials, "unauthorized"},
		{fmt.Errorf("wrap: %w", model.ErrRefreshTokenNotFound), "not_found"},
		{model.ErrUserAlreadyExists, "conflict"},
		{model.ErrInvalidInput, "invalid"},
		{errors.New("db down"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result(tt.err), "err=%v", tt.err)
	}
}

func TestObserveAuth(t *testing.T) {
	m := New()
	m.ObserveAuth("login", nil)
	m.ObserveAuth("login", nil)
	m.ObserveAuth("login", model.ErrInvalidCredentials)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOps.WithLabelValues("login", "unauthorized")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveAuth("login", nil) })
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/api/auth/logout/{userId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/logout/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "eventmaster_http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			found = labels["route"] == "/api/auth/logout/{userId}" && labels["status"] == "403"
		}
	}
	assert.True(t, found)
}

func TestServer_ExposesMetricsAndHealth(t *testing.T) {
	m := New()
	m.ObserveAuth("register", nil)

	srv := newServer(":0", m, func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `eventmaster_auth_operations_total{operation="register",result="ok"} 1`))

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy := newServer(":0", m, func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	unhealthy.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
