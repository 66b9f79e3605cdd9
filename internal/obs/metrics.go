package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Relay metrics.
var (
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Admitted WebSocket connections currently open.",
	})

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound connection events by name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Relayed messages by outcome (delivered, intercepted, injected, dropped, rejected).",
		},
		[]string{"outcome"},
	)

	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_delivery_failures_total",
		Help: "Fan-out deliveries skipped because the subscriber was unreachable.",
	})

	InterceptionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_interception_active",
		Help: "1 while the relay is intercepting traffic.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

var (
	initOnce sync.Once
	ready    atomic.Bool
)

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			ConnectionsActive, EventsTotal, MessagesTotal, DeliveryFailures,
			InterceptionActive, readyGauge,
		)
	})
}

// SetReady records the latest readiness probe result.
func SetReady(ok bool) {
	ready.Store(ok)
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Ready reports the latest readiness probe result.
func Ready() bool { return ready.Load() }

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses request paths into a bounded label set.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch path {
	case "":
		return "/"
	case "/", "/ws", "/healthz", "/readyz", "/metrics", "/v1/info":
		return path
	}
	return "other"
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}
