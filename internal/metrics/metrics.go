// Package metrics defines the Prometheus instruments for the lifecycle engine
// and its post-commit hooks.
//
// All methods are safe on a nil *Lifecycle so that tests and the CLI can run
// without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lodge"

// Lifecycle holds the engine's counters and histograms.
type Lifecycle struct {
	// OperationsTotal counts engine operations by name and outcome kind.
	// Labels: operation (update_document, verify, ...), outcome (ok, validation, conflict, ...)
	OperationsTotal *prometheus.CounterVec

	// OperationDuration measures engine operations end to end, retries included.
	// Labels: operation
	OperationDuration *prometheus.HistogramVec

	// TransitionsTotal counts document status transitions.
	// Labels: from, to
	TransitionsTotal *prometheus.CounterVec

	// RevisionsTotal counts minted revisions.
	// Labels: origin (edit, restore)
	RevisionsTotal *prometheus.CounterVec

	// ValueSetTransitionsTotal counts value set status changes.
	// Labels: context, to
	ValueSetTransitionsTotal *prometheus.CounterVec

	// TxRetriesTotal counts units of work re-run after losing a race.
	TxRetriesTotal prometheus.Counter

	// HookFailuresTotal counts failed post-commit hooks.
	// Labels: hook (notify, rebuild)
	HookFailuresTotal *prometheus.CounterVec

	// RebuildsTotal counts projection rebuilds by outcome.
	// Labels: outcome (ok, error)
	RebuildsTotal *prometheus.CounterVec
}

// New creates and registers the lifecycle metrics on reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Lifecycle {
	factory := promauto.With(reg)
	return &Lifecycle{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "operations_total",
				Help:      "Lifecycle operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "operation_duration_seconds",
				Help:      "Lifecycle operation latency including retries",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Document status transitions",
			},
			[]string{"from", "to"},
		),
		RevisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "revisions_total",
				Help:      "Revisions minted by origin",
			},
			[]string{"origin"},
		),
		ValueSetTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "valuesets",
				Name:      "transitions_total",
				Help:      "Value set status transitions",
			},
			[]string{"context", "to"},
		),
		TxRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "tx_retries_total",
				Help:      "Units of work retried after a concurrent commit",
			},
		),
		HookFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "hooks",
				Name:      "failures_total",
				Help:      "Post-commit hook failures",
			},
			[]string{"hook"},
		),
		RebuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rebuild",
				Name:      "rebuilds_total",
				Help:      "Projection rebuilds by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Lifecycle) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Lifecycle) Transition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Lifecycle) RevisionMinted(origin string) {
	if m == nil {
		return
	}
	m.RevisionsTotal.WithLabelValues(origin).Inc()
}

func (m *Lifecycle) ValueSetTransition(context, to string) {
	if m == nil {
		return
	}
	m.ValueSetTransitionsTotal.WithLabelValues(context, to).Inc()
}

func (m *Lifecycle) TxRetry() {
	if m == nil {
		return
	}
	m.TxRetriesTotal.Inc()
}

func (m *Lifecycle) HookFailed(hook string) {
	if m == nil {
		return
	}
	m.HookFailuresTotal.WithLabelValues(hook).Inc()
}

func (m *Lifecycle) Rebuild(outcome string) {
	if m == nil {
		return
	}
	m.RebuildsTotal.WithLabelValues(outcome).Inc()
}
