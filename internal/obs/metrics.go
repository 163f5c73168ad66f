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

// Portal metrics
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_login_attempts_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	navigations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_navigation_total",
			Help: "Navigation decisions by view.",
		},
		[]string{"view", "decision"},
	)

	contextFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_context_fetch_total",
			Help: "Organization context fetches by outcome.",
		},
		[]string{"outcome"},
	)

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_sessions_active",
		Help: "1 while a session is authenticated.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginAttempts, navigations, contextFetches, sessionsActive,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts one login attempt.
func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveNavigation counts one guard decision. Unknown views share a label so
// arbitrary deep links cannot grow the series set.
func ObserveNavigation(view, decision string, known bool) {
	if !known {
		view = "other"
	}
	navigations.WithLabelValues(view, decision).Inc()
}

// ObserveContextFetch counts one organization fetch.
func ObserveContextFetch(outcome string) {
	contextFetches.WithLabelValues(outcome).Inc()
}

// SetSessionActive flips the active session gauge.
func SetSessionActive(active bool) {
	if active {
		sessionsActive.Set(1)
		return
	}
	sessionsActive.Set(0)
}

// Instrument records request count, latency and in-flight gauge.
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

var knownPaths = map[string]bool{
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/v1/info":           true,
	"/v1/session":        true,
	"/v1/session/login":  true,
	"/v1/session/logout": true,
	"/v1/navigation":     true,
}

// CanonicalPath collapses per-view paths and folds unrouted ones into "other" so
// metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if knownPaths[p] {
		return p
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if parts[0] == "v1" && len(parts) >= 2 && parts[1] == "views" && len(parts) <= 3 {
		return "/v1/views/:name"
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
