package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// Metrics mengumpulkan metrik Prometheus untuk layanan otorisasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik keputusan.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_decisions_total",
		Help: "Jumlah keputusan otorisasi per modul dan alasan.",
	}, []string{"module", "reason"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_grant_mutations_total",
		Help: "Jumlah perubahan matriks izin per peran dan hasil.",
	}, []string{"role", "result"})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_store_errors_total",
		Help: "Jumlah kegagalan penyimpanan izin per operasi.",
	}, []string{"op", "kind"})
	registry.MustRegister(requests, duration, decisions, mutations, storeErrors)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisions:       decisions,
		mutations:       mutations,
		storeErrors:     storeErrors,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveDecision mencatat satu keputusan. Modul di luar katalog digabung
// agar kardinalitas label tetap terbatas.
func (m *Metrics) ObserveDecision(d authz.Decision) {
	if m == nil {
		return
	}
	module := string(d.Module)
	if !authz.DefaultCatalog().HasModule(d.Module) {
		module = "unknown"
	}
	m.decisions.WithLabelValues(module, string(d.Reason)).Inc()
}

// ObserveGrantMutation mencatat hasil setGrant.
func (m *Metrics) ObserveGrantMutation(key authz.GrantKey, err error) {
	if m == nil {
		return
	}
	role := string(key.Role)
	if !key.Role.Valid() {
		role = "unknown"
	}
	m.mutations.WithLabelValues(role, resultLabel(err)).Inc()
}

// ObserveStoreError mencatat kegagalan penyimpanan.
func (m *Metrics) ObserveStoreError(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.storeErrors.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, authz.ErrStoreTimeout):
		return "timeout"
	case errors.Is(err, authz.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, authz.ErrDirectoryTimeout):
		return "directory_timeout"
	case errors.Is(err, authz.ErrDirectoryUnavailable):
		return "directory_unavailable"
	case errors.Is(err, authz.ErrInvalidGrantTuple):
		return "invalid"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

var _ authz.Observer = (*Metrics)(nil)
