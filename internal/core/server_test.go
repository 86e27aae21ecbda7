package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorepipe/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(&config.Config{}, logger)
	require.NoError(t, err)
	return s
}

func TestNewServer_NilDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewServer(nil, logger)
	assert.Error(t, err)

	_, err = NewServer(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestMountRoutes_RequestIDAndSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	s.APIRouteRegistrars = append(s.APIRouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"pong": "ok"})
		})
	})
	s.MountRoutes()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMountRoutes_PropagatesInboundRequestID(t *testing.T) {
	s := newTestServer(t)
	s.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-inbound-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-inbound-1", rec.Header().Get("X-Request-Id"))
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t)
	s.APIRouteRegistrars = append(s.APIRouteRegistrars, func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) {
			panic("unexpected fault")
		})
	})
	s.MountRoutes()

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal_unexpected_error", resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), "unexpected fault")
}

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                { return p.name }
func (p stubProbe) Check(context.Context) error { return p.err }

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		probes     []HealthProbe
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no probes",
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:       "all healthy",
			probes:     []HealthProbe{stubProbe{name: "sqs"}, stubProbe{name: "bus"}},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:       "one unhealthy",
			probes:     []HealthProbe{stubProbe{name: "sqs"}, stubProbe{name: "db", err: fmt.Errorf("down")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.HealthProbes = tt.probes
			s.MountRoutes()

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestShutdown_RunsHooksInOrder(t *testing.T) {
	s := newTestServer(t)

	var order []string
	s.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	s.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestShutdown_HookFailure(t *testing.T) {
	s := newTestServer(t)
	s.OnShutdown(func(context.Context) error { return fmt.Errorf("drain failed") })

	err := s.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain failed")
}
