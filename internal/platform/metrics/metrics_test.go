package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
)

func TestRecorder(t *testing.T) {
	m := New()

	m.AccessDecision(true)
	m.AccessDecision(false)
	m.AccessDecision(false)
	m.Redemption(familyaccess.OutcomeCreated)
	m.WorkflowError("redeem", fmt.Errorf("wrap: %w", familyaccess.ErrTokenConsumed))
	m.WorkflowError("send", errors.New("disk full"))
	m.WorkflowError("send", nil)

	if got := testutil.ToFloat64(m.accessDecisions.WithLabelValues("denied")); got != 2 {
		t.Errorf("denied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.redemptions.WithLabelValues("created")); got != 1 {
		t.Errorf("created = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workflowErrors.WithLabelValues("redeem", "token_consumed")); got != 1 {
		t.Errorf("token_consumed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workflowErrors.WithLabelValues("send", "internal")); got != 1 {
		t.Errorf("internal = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AccessDecision(true)
	m.Redemption(familyaccess.OutcomeAlreadyRedeemed)
	m.WorkflowError("x", errors.New("y"))

	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("nil middleware must pass through")
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/records/{recordId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/records/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/records/def", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/records/{recordId}", "403")); got != 2 {
		t.Errorf("requests = %v, want 2 (route pattern, not raw path)", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chikitsa_http_requests_total") {
		t.Error("exposition missing chikitsa_http_requests_total")
	}
}
