package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all application metrics for the control node. A
// single Registry is constructed at process startup and passed to the
// execution engine and the control service.
type Registry struct {
	// ExecPhaseDuration observes the wall-clock cost of each of the
	// four profiling phases (total, parse, rewrite, exec) recorded by
	// the execution engine's per-query profiler.
	ExecPhaseDuration *prometheus.HistogramVec

	// PlannerRejections counts queries the planner refused to rewrite,
	// labeled by the ddbserrors.Kind that was returned.
	PlannerRejections *prometheus.CounterVec

	// BackendsAlive is the count of backend nodes registered with the
	// cluster manager, set after each successful ClusterInit.
	BackendsAlive prometheus.Gauge

	// DeriveBuildDuration observes how long each derived-table build
	// took, labeled by table ("be_read" or "popular_rank").
	DeriveBuildDuration *prometheus.HistogramVec

	// DeriveBuildsTotal counts derived-table build attempts, labeled by
	// table and result ("ok" or "error").
	DeriveBuildsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewRegistry creates a metrics registry and registers every metric
// with a fresh prometheus.Registry (not the global DefaultRegisterer,
// so multiple Registry instances can coexist in tests).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		ExecPhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ddbs_exec_phase_seconds",
			Help:    "Duration of each query execution phase in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),

		PlannerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbs_planner_rejections_total",
			Help: "Count of queries rejected by the planner, by error kind.",
		}, []string{"kind"}),

		BackendsAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ddbs_backends_alive",
			Help: "Number of backend nodes currently considered alive.",
		}),

		DeriveBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ddbs_derive_build_duration_seconds",
			Help:    "Duration of a derived-table build in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),

		DeriveBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ddbs_derive_builds_total",
			Help: "Count of derived-table build attempts, by table and result.",
		}, []string{"table", "result"}),

		registry: reg,
	}

	reg.MustRegister(
		r.ExecPhaseDuration,
		r.PlannerRejections,
		r.BackendsAlive,
		r.DeriveBuildDuration,
		r.DeriveBuildsTotal,
	)

	return r
}

// Handler returns an HTTP handler serving /metrics in Prometheus text
// format for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObservePhase records the duration in seconds of one profiling phase
// ("total", "parse", "rewrite", or "exec").
func (r *Registry) ObservePhase(phase string, seconds float64) {
	r.ExecPhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// IncRejection records a planner rejection for the given error kind.
func (r *Registry) IncRejection(kind string) {
	r.PlannerRejections.WithLabelValues(kind).Inc()
}

// SetBackendsAlive updates the live-backend gauge.
func (r *Registry) SetBackendsAlive(n int) {
	r.BackendsAlive.Set(float64(n))
}

// ObserveDeriveBuild records the outcome and duration of a derived-table
// build ("be_read" or "popular_rank").
func (r *Registry) ObserveDeriveBuild(table string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.DeriveBuildDuration.WithLabelValues(table).Observe(seconds)
	r.DeriveBuildsTotal.WithLabelValues(table, result).Inc()
}
