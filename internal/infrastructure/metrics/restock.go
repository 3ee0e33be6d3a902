// Package metrics exposes restocking counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vendstock/internal/domain/restock"
)

const namespace = "vendstock"

// Restock implements restock.Observer.
type Restock struct {
	sessions       prometheus.Counter
	resolved       *prometheus.CounterVec
	refused        prometheus.Counter
	refusedPending prometheus.Histogram
	failed         prometheus.Counter
	committed      prometheus.Counter
	visitDuration  prometheus.Histogram
}

var _ restock.Observer = (*Restock)(nil)

// NewRestock registers the collectors on reg.
func NewRestock(reg prometheus.Registerer) *Restock {
	m := &Restock{
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restock", Name: "sessions_opened_total",
			Help: "Restocking sessions opened.",
		}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restock", Name: "instructions_resolved_total",
			Help: "Worklist instructions marked done, by kind.",
		}, []string{"kind"}),
		refused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restock", Name: "commits_refused_total",
			Help: "Commits refused because mandatory instructions remained.",
		}),
		refusedPending: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "restock", Name: "refused_remaining_instructions",
			Help:    "Mandatory instructions left at a refused commit.",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restock", Name: "commits_failed_total",
			Help: "Commits that failed to persist.",
		}),
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "restock", Name: "visits_committed_total",
			Help: "Visits committed.",
		}),
		visitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "restock", Name: "visit_duration_seconds",
			Help:    "Time from session open to commit.",
			Buckets: []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),
	}
	reg.MustRegister(m.sessions, m.resolved, m.refused, m.refusedPending, m.failed, m.committed, m.visitDuration)
	return m
}

func (m *Restock) SessionOpened() { m.sessions.Inc() }

func (m *Restock) InstructionResolved(kind restock.Kind) {
	m.resolved.WithLabelValues(string(kind)).Inc()
}

func (m *Restock) CommitRefused(remaining int) {
	m.refused.Inc()
	m.refusedPending.Observe(float64(remaining))
}

func (m *Restock) CommitFailed() { m.failed.Inc() }

func (m *Restock) VisitCommitted(d time.Duration) {
	m.committed.Inc()
	m.visitDuration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
