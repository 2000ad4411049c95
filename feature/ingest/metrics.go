package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"vitals-manager/feature/ingest/reconcile"
	"vitals-manager/feature/ingest/record"
)

// Metrics exposes the engine's Prometheus instrumentation.
type Metrics struct {
	decisions  *prometheus.CounterVec
	itemErrors *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	runs       *prometheus.CounterVec
}

// NewMetrics builds and registers the engine metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "ingest",
			Name:      "decisions_total",
			Help:      "Reconciliation decisions by source and kind.",
		}, []string{"source", "kind"}),
		itemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "ingest",
			Name:      "item_errors_total",
			Help:      "Raw items dropped during normalization.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "ingest",
			Name:      "duplicates_total",
			Help:      "Intra-batch duplicates resolved in staging.",
		}, []string{"source"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vitals",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Import runs by source and outcome.",
		}, []string{"source", "outcome"}),
	}
	reg.MustRegister(m.decisions, m.itemErrors, m.duplicates, m.runs)
	return m
}

func (m *Metrics) observeRun(src record.Source, run *Run) {
	if m == nil {
		return
	}
	s := string(src)
	m.decisions.WithLabelValues(s, string(reconcile.KindInsert)).Add(float64(run.Counts.Inserted))
	m.decisions.WithLabelValues(s, string(reconcile.KindUpdate)).Add(float64(run.Counts.Updated))
	m.decisions.WithLabelValues(s, string(reconcile.KindSkip)).Add(float64(run.Counts.Skipped))
	m.decisions.WithLabelValues(s, string(reconcile.KindConflict)).Add(float64(run.Counts.Conflicts))
	m.itemErrors.WithLabelValues(s).Add(float64(run.Counts.Errors))
	m.duplicates.WithLabelValues(s).Add(float64(run.Counts.Duplicates))
	m.runs.WithLabelValues(s, string(run.Outcome)).Inc()
}
