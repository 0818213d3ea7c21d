package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics
var (
	appsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_apps_created_total",
		Help: "Apps added to the catalog.",
	})

	overallDivergence = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_overall_score_divergence_total",
		Help: "App writes whose hand-entered overall score disagreed with the computed one.",
	})

	prescriptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_prescription_transitions_total",
			Help: "Prescription status changes by source and target status.",
		},
		[]string{"from", "to"},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_messages_sent_total",
			Help: "Messages sent by sender role and priority.",
		},
		[]string{"sender_role", "priority"},
	)

	progressUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_progress_updates_total",
		Help: "Progress upserts accepted.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_ready",
		Help: "1 when the last readiness check passed.",
	})
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			appsCreated, overallDivergence, prescriptionTransitions, messagesSent, progressUpdates, ready,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func AppCreated() { appsCreated.Inc() }

func OverallDivergence() { overallDivergence.Inc() }

// PrescriptionTransition records a status change; a new prescription uses from="".
func PrescriptionTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	prescriptionTransitions.WithLabelValues(from, to).Inc()
}

func MessageSent(senderRole, priority string) {
	messagesSent.WithLabelValues(senderRole, priority).Inc()
}

func ProgressUpdated() { progressUpdates.Inc() }

func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures throughput, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// fixed second segments that are not resource ids
var staticSegments = map[string]map[string]bool{
	"apps":     {"stats": true, "score": true},
	"messages": {"unread-count": true},
}

// CanonicalPath collapses resource ids so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	resource, id := parts[1], parts[2]
	switch resource {
	case "apps", "prescriptions", "messages":
	default:
		return raw
	}
	if staticSegments[resource][id] {
		return raw
	}
	switch {
	case len(parts) == 3:
		return "/v1/" + resource + "/:id"
	case len(parts) == 4 && resource == "messages" && parts[3] == "read":
		return "/v1/messages/:id/read"
	}
	return raw
}

// statusWriter records the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
