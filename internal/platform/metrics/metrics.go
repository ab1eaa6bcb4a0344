// Package metrics exposes Prometheus collectors for request traffic and
// family access outcomes.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chikitsa-cloud/chikitsa-go/internal/components/familyaccess"
)

const namespace = "chikitsa"

// Metrics owns a private registry. All methods are safe on a nil receiver so
// callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	accessDecisions *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	workflowErrors  *prometheus.CounterVec
}

// New creates and registers all collectors, including Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "family_access_decisions_total",
			Help:      "Medical record access checks by result",
		}, []string{"result"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "family_invite_redemptions_total",
			Help:      "Successful invite redemptions by outcome",
		}, []string{"outcome"}),
		workflowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "family_access_errors_total",
			Help:      "Family access workflow failures by operation and reason",
		}, []string{"op", "reason"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.accessDecisions,
		m.redemptions,
		m.workflowErrors,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// AccessDecision implements familyaccess.Recorder.
func (m *Metrics) AccessDecision(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.accessDecisions.WithLabelValues(result).Inc()
}

// Redemption implements familyaccess.Recorder.
func (m *Metrics) Redemption(outcome familyaccess.OutcomeKind) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(string(outcome)).Inc()
}

// WorkflowError implements familyaccess.Recorder.
func (m *Metrics) WorkflowError(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.workflowErrors.WithLabelValues(op, reason(err)).Inc()
}

// reason keeps label cardinality bounded to the sentinel set.
func reason(err error) string {
	for _, s := range []struct {
		err   error
		label string
	}{
		{familyaccess.ErrSelfReference, "self_reference"},
		{familyaccess.ErrDuplicatePending, "already_pending"},
		{familyaccess.ErrDuplicateGrant, "already_granted"},
		{familyaccess.ErrNotFound, "not_found"},
		{familyaccess.ErrForbidden, "forbidden"},
		{familyaccess.ErrAlreadyResponded, "already_responded"},
		{familyaccess.ErrExpired, "token_expired"},
		{familyaccess.ErrTokenConsumed, "token_consumed"},
		{familyaccess.ErrInvalidArgument, "invalid_argument"},
	} {
		if errors.Is(err, s.err) {
			return s.label
		}
	}
	return "internal"
}

// Middleware records request counts and latency keyed by the matched chi
// route pattern, not the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var _ familyaccess.Recorder = (*Metrics)(nil)
