package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the planner's run metrics
type Registry struct {
	reg               *prometheus.Registry
	ModelsBuilt       prometheus.Counter
	RunFailures       *prometheus.CounterVec
	FormulationSize   *prometheus.GaugeVec
	Solves            *prometheus.CounterVec
	SolveLatencySec   prometheus.Histogram
	AssignedBatches   prometheus.Gauge
	UnassignedBatches prometheus.Gauge
	DemandCoverage    prometheus.Gauge
}

// NewRegistry creates a registry with every planner metric registered
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	built := prometheus.NewCounter(prometheus.CounterOpts{Name: "batchalloc_models_built_total", Help: "Allocation models formulated."})
	runFailures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "batchalloc_run_failures_total", Help: "Planning runs that failed, by error kind."}, []string{"kind"})
	size := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "batchalloc_formulation_size", Help: "Size of the last formulation."}, []string{"dimension"})
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "batchalloc_solves_total", Help: "Solver runs by solver and status."}, []string{"solver", "status"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchalloc_solve_latency_seconds",
		Help:    "Wall time spent in the solver.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	assigned := prometheus.NewGauge(prometheus.GaugeOpts{Name: "batchalloc_assigned_batches", Help: "Batches assigned in the last plan."})
	unassigned := prometheus.NewGauge(prometheus.GaugeOpts{Name: "batchalloc_unassigned_batches", Help: "Batches left unassigned in the last plan."})
	coverage := prometheus.NewGauge(prometheus.GaugeOpts{Name: "batchalloc_demand_coverage_ratio", Help: "Share of demanded mass dispatched in the last plan."})

	r.MustRegister(built, runFailures, size, solves, latency, assigned, unassigned, coverage)
	return &Registry{
		reg:               r,
		ModelsBuilt:       built,
		RunFailures:       runFailures,
		FormulationSize:   size,
		Solves:            solves,
		SolveLatencySec:   latency,
		AssignedBatches:   assigned,
		UnassignedBatches: unassigned,
		DemandCoverage:    coverage,
	}
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteFile writes the text exposition of every metric to path, for node-exporter textfile collection
func (r *Registry) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
