package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "analyst_eval"

// Metrics holds the Prometheus collectors for collection, evaluation and ranking
// nil *Metrics is valid: 모든 메서드가 no-op
type Metrics struct {
	UnitsTotal       *prometheus.CounterVec
	UnitDuration     *prometheus.HistogramVec
	WorkersBusy      prometheus.Gauge
	JobsTerminal     *prometheus.CounterVec
	ProgressConflict prometheus.Counter
	Evaluations      *prometheus.CounterVec
	RankRecomputes   prometheus.Counter
}

// New registers all collectors on reg (default registerer when nil)
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		UnitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collection",
			Name:      "units_total",
			Help:      "Collection units resolved, by type and outcome",
		}, []string{"type", "outcome"}),
		UnitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "collection",
			Name:      "unit_duration_seconds",
			Help:      "Wall time of one collection unit including retries",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type"}),
		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "collection",
			Name:      "workers_busy",
			Help:      "Workers currently executing a unit",
		}),
		JobsTerminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collection",
			Name:      "jobs_terminal_total",
			Help:      "Collection jobs that reached a terminal status",
		}, []string{"status"}),
		ProgressConflict: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "collection",
			Name:      "progress_conflicts_total",
			Help:      "Optimistic progress updates that lost a race and were retried",
		}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "evaluation",
			Name:      "finished_total",
			Help:      "Evaluations finished, by status",
		}, []string{"status"}),
		RankRecomputes: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ranking",
			Name:      "recomputes_total",
			Help:      "Full period re-rank runs",
		}),
	}
}

func (m *Metrics) UnitFinished(collectionType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(collectionType, outcome).Inc()
	m.UnitDuration.WithLabelValues(collectionType).Observe(d.Seconds())
}

func (m *Metrics) WorkerStarted() {
	if m != nil {
		m.WorkersBusy.Inc()
	}
}

func (m *Metrics) WorkerDone() {
	if m != nil {
		m.WorkersBusy.Dec()
	}
}

func (m *Metrics) JobTerminal(status string) {
	if m != nil {
		m.JobsTerminal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.ProgressConflict.Inc()
	}
}

func (m *Metrics) EvaluationFinished(status string) {
	if m != nil {
		m.Evaluations.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) RankRecomputed() {
	if m != nil {
		m.RankRecomputes.Inc()
	}
}
