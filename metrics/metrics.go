// Package metrics exposes Prometheus collectors for the HTTP surface and the complaint engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_submissions_total",
			Help: "Complaint submissions by evaluator outcome.",
		},
		[]string{"outcome"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transitions_total",
			Help: "Applied complaint status transitions.",
		},
		[]string{"from", "to"},
	)
	bumps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "complaint_bumps_total",
			Help: "Stale complaints bumped by citizens.",
		},
	)
	moderation = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Moderation actions by kind (strike, ban, unban, report, delete).",
		},
		[]string{"action"},
	)
	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox relay results.",
		},
		[]string{"result"},
	)
)

func Register() {
	prometheus.MustRegister(httpRequests, httpLatency, submissions, transitions, bumps, moderation, outboxPublished)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request counts and latency labelled by the matched route template.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(srw, r)
		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(srw.statusCode)).Inc()
		httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func IncSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func IncTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

func IncBump() {
	bumps.Inc()
}

func IncModeration(action string) {
	moderation.WithLabelValues(action).Inc()
}

func IncOutbox(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
