package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	seededCells *prometheus.CounterVec
	unsetCells  *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddSeededCells records the outcome of a seeding batch.
func (m *Metrics) AddSeededCells(role string, applied, failed int) {
	if m == nil {
		return
	}
	if applied > 0 {
		m.seededCells.WithLabelValues(role, "applied").Add(float64(applied))
	}
	if failed > 0 {
		m.seededCells.WithLabelValues(role, "failed").Add(float64(failed))
	}
}

// SetUnsetCells reports how many catalog cells a role has no stored grant for.
func (m *Metrics) SetUnsetCells(role string, n int) {
	if m == nil {
		return
	}
	m.unsetCells.WithLabelValues(role).Set(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	seeded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_seed_cells_total",
		Help: "Matrix cells written by default seeding, by role and outcome.",
	}, []string{"role", "result"})
	unset := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "authz_matrix_unset_cells",
		Help: "Catalog cells without a stored grant, per role, at the last audit.",
	}, []string{"role"})
	registerer.MustRegister(runs, failures, duration, seeded, unset)
	return &Metrics{runs: runs, failures: failures, duration: duration, seededCells: seeded, unsetCells: unset}
}
