package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"beaconhealth.org/internal/audit"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/obs"
	"beaconhealth.org/internal/prescription"
	"beaconhealth.org/internal/progress"
)

const serviceName = "beacon-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyCheck pings the database and any extra dependencies.
type ReadyCheck struct {
	DB     *sql.DB
	Checks []func(context.Context) error
}

func (rp ReadyCheck) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	for _, check := range rp.Checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Services are the domain contracts served over HTTP.
type Services struct {
	Catalog       catalog.Service
	Prescriptions prescription.Service
	Progress      progress.Service
	Messages      messaging.Service
}

// API is the HTTP layer.
type API struct {
	router     *mux.Router
	readiness readinessChecker
	version    string
	svc        Services

	rateBurst  int
	ratePerSec float64
}

type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec = perSecond
			a.rateBurst = burst
		}
	}
}

func New(rp readinessChecker, version string, svc Services, opts ...Option) *API {
	a := &API{
		router:     mux.NewRouter(),
		readiness: rp,
		version:    version,
		svc:        svc,
		rateBurst:  200,
		ratePerSec: 100,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	a.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready/info
	a.router.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	a.router.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := a.router.PathPrefix("/v1").Subrouter()

	// catalog; fixed segments before {id}
	v1.HandleFunc("/apps", a.listApps).Methods(http.MethodGet)
	v1.HandleFunc("/apps", a.createApp).Methods(http.MethodPost)
	v1.HandleFunc("/apps/stats", a.catalogStats).Methods(http.MethodGet)
	v1.HandleFunc("/apps/score", a.scorePreview).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{id}", a.getApp).Methods(http.MethodGet)
	v1.HandleFunc("/apps/{id}", a.patchApp).Methods(http.MethodPatch)

	v1.HandleFunc("/prescriptions", a.listPrescriptions).Methods(http.MethodGet)
	v1.HandleFunc("/prescriptions", a.createPrescription).Methods(http.MethodPost)
	v1.HandleFunc("/prescriptions/{id}", a.getPrescription).Methods(http.MethodGet)
	v1.HandleFunc("/prescriptions/{id}", a.patchPrescription).Methods(http.MethodPatch)

	v1.HandleFunc("/progress", a.getProgress).Methods(http.MethodGet)
	v1.HandleFunc("/progress", a.putProgress).Methods(http.MethodPut)

	v1.HandleFunc("/messages", a.inbox).Methods(http.MethodGet)
	v1.HandleFunc("/messages", a.sendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/messages/unread-count", a.unreadCount).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}/read", a.markRead).Methods(http.MethodPost)

	return a
}

// Handler wraps the router with the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = Actor(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	if err := audit.LogEvent(ctx, event, fields); err != nil {
		obs.Logger().Error().Err(err).Str("event", event).Msg("audit log failed")
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
