package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"mitmlab.org/internal/obs"
)

const serviceName = "mitmlab-relay"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe: простая проверка готовности (ping БД, если она есть).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options configures the HTTP surface.
type Options struct {
	// AllowOrigin decides CORS. Nil allows only local dev origins.
	AllowOrigin func(origin string) bool
	// Per-IP token bucket applied to /ws upgrades.
	UpgradeRatePerSec int
	UpgradeRateBurst  int
	// TrustedProxies may set X-Forwarded-For. Empty keys limits on the peer address.
	TrustedProxies TrustedProxies
}

// API: HTTP слой.
type API struct {
	mux         *http.ServeMux
	readyProbe  readinessChecker
	version     string
	allowOrigin func(string) bool
}

// New mounts health, info, metrics and the WebSocket endpoint.
func New(rp readinessChecker, version string, ws http.Handler, opts Options) *API {
	if opts.UpgradeRatePerSec <= 0 {
		opts.UpgradeRatePerSec = 5
	}
	if opts.UpgradeRateBurst <= 0 {
		opts.UpgradeRateBurst = 2 * opts.UpgradeRatePerSec
	}
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		allowOrigin: opts.AllowOrigin,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	if ws != nil {
		a.mux.Handle("/ws", RateLimit(ws, opts.UpgradeRateBurst, opts.UpgradeRatePerSec, opts.TrustedProxies))
	}

	// корень: 404
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler возвращает http.Handler для сервера со всеми middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = CORS(h, a.allowOrigin)
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
	if err := a.readyProbe.Check(r.Context()); err != nil {
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

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}
