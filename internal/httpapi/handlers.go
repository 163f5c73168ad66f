package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"danaya.health/portal/internal/guard"
	"danaya.health/portal/internal/obs"
	"danaya.health/portal/internal/router"
	"danaya.health/portal/internal/session"
)

// Portal is the session facade the HTTP layer drives.
type Portal interface {
	Login(ctx context.Context, email, password string) (session.Snapshot, error)
	Logout(ctx context.Context) error
	Snapshot(ctx context.Context) session.Snapshot
	Navigate(ctx context.Context, requested guard.View) router.Location
	Menu(ctx context.Context) []router.MenuEntry
}

// Pinger is implemented by the session storage backends.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the local session storage.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// API is the JSON surface consumed by the rendering layer.
type API struct {
	mux        *http.ServeMux
	portal     Portal
	readyProbe ReadyProbe
	version    string

	origins    []string
	rateBurst  int
	ratePerSec float64
	maxBody    int64
}

// Option configures API.
type Option func(*API)

// WithAllowedOrigins adds renderer origins accepted by CORS.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) { a.origins = append(a.origins, origins...) }
}

// WithLoginRateLimit sets the per-IP limit on the login endpoint.
func WithLoginRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

// WithReadyProbe sets the readiness check.
func WithReadyProbe(rp ReadyProbe) Option {
	return func(a *API) { a.readyProbe = rp }
}

func New(p Portal, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		portal:     p,
		version:    version,
		rateBurst:  10,
		ratePerSec: 1,
		maxBody:    16 << 10,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// session and navigation
	a.mux.Handle("/v1/session/login", RateLimit(http.HandlerFunc(a.handleLogin), a.rateBurst, a.ratePerSec))
	a.mux.HandleFunc("/v1/session/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/session", a.handleSession)
	a.mux.HandleFunc("/v1/navigation", a.handleNavigation)
	a.mux.HandleFunc("/v1/views/", a.handleView)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h, a.origins...)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "danaya-portal",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "danaya-portal",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
