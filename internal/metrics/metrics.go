// Package metrics exposes Prometheus collectors for the intake service.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns every intake collector. A nil *Recorder is valid and records
// nothing, which keeps tests and tools free of registry plumbing.
type Recorder struct {
	submissions   *prometheus.CounterVec
	limiter       *prometheus.CounterVec
	crmSync       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	events        *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewRecorder registers the collectors against the provided registry.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Form submissions partitioned by terminal outcome.",
		}, []string{"outcome"}),
		limiter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_rate_limit_decisions_total",
			Help: "Rate limiter verdicts partitioned by backend and result.",
		}, []string{"backend", "result"}),
		crmSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_crm_sync_total",
			Help: "CRM synchronization attempts partitioned by resulting sync status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_notifications_total",
			Help: "Notification emails partitioned by kind and result.",
		}, []string{"kind", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_lead_events_total",
			Help: "Lead events published partitioned by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{
		r.submissions,
		r.limiter,
		r.crmSync,
		r.notifications,
		r.events,
		r.httpRequests,
		r.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register intake collector: %w", err)
		}
	}
	return r, nil
}

// Handler returns an http.Handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveSubmission counts a submission by outcome.
func (r *Recorder) ObserveSubmission(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

// ObserveRateLimit counts one identifier check.
func (r *Recorder) ObserveRateLimit(backend string, allowed bool) {
	if r == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	r.limiter.WithLabelValues(backend, result).Inc()
}

// ObserveRateLimitError counts a backend failure.
func (r *Recorder) ObserveRateLimitError(backend string) {
	if r == nil {
		return
	}
	r.limiter.WithLabelValues(backend, "error").Inc()
}

// ObserveSync counts a CRM sync attempt by the status it left behind.
func (r *Recorder) ObserveSync(status string) {
	if r == nil {
		return
	}
	r.crmSync.WithLabelValues(status).Inc()
}

// ObserveNotification counts one notification email.
func (r *Recorder) ObserveNotification(kind string, sent bool) {
	if r == nil {
		return
	}
	result := "sent"
	if !sent {
		result = "failed"
	}
	r.notifications.WithLabelValues(kind, result).Inc()
}

// ObserveEvent counts one lead event publication.
func (r *Recorder) ObserveEvent(published bool) {
	if r == nil {
		return
	}
	result := "published"
	if !published {
		result = "failed"
	}
	r.events.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (r *Recorder) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
