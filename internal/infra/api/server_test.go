//go:build !integration

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/api/apiv1"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	plans, err := usecase.NewPlanUseCase()
	if err != nil {
		t.Fatalf("plans: %v", err)
	}
	v1 := apiv1.NewServer(apiv1.Deps{Plans: plans, Auth: apiv1.NewAuthenticator("s")}, newTestLogger())
	return NewRouter(v1, time.Second, newTestLogger(), checks)
}

func TestRouter_Health(t *testing.T) {
	t.Run("should report ok when every check passes", func(t *testing.T) {
		r := newTestRouter(t, map[string]HealthCheck{"postgres": func(context.Context) error { return nil }})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var body map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != http.StatusOK || body["status"] != "ok" || body["postgres"] != "ok" {
			t.Errorf("unexpected health %d %v", rec.Code, body)
		}
	})

	t.Run("should degrade when a dependency is down", func(t *testing.T) {
		r := newTestRouter(t, map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("dial tcp: refused") }})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
			t.Errorf("expected 503 degraded, got %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestRouter_MetricsAndTrace(t *testing.T) {
	r := newTestRouter(t, nil)

	// one API call so the route shows up in the exposition
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get(headerRequestID) != "req-42" {
		t.Errorf("expected the request id to be echoed, got %q", rec.Header().Get(headerRequestID))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `route="/api/v1/plans"`) {
		t.Errorf("expected route metrics in exposition, got %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Recover(newTestLogger()))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), `"INTERNAL"`) {
		t.Errorf("expected a JSON 500, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestTimeout(t *testing.T) {
	var deadline bool
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}), Timeout(time.Second))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !deadline {
		t.Error("expected a request deadline")
	}
}
