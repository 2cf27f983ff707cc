package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLifecycleCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition("Draft", "Verified")
	m.Transition("Draft", "Verified")
	m.RevisionMinted("restore")
	m.HookFailed("notify")
	m.TxRetry()
	m.ObserveOperation("verify", "ok", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("Draft", "Verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RevisionsTotal.WithLabelValues("restore")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookFailuresTotal.WithLabelValues("notify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TxRetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("verify", "ok")))
}

func TestNilLifecycleIsSafe(t *testing.T) {
	var m *Lifecycle
	assert.NotPanics(t, func() {
		m.Transition("a", "b")
		m.RevisionMinted("edit")
		m.ValueSetTransition("Offered", "Locked")
		m.TxRetry()
		m.HookFailed("rebuild")
		m.Rebuild("ok")
		m.ObserveOperation("op", "ok", 1)
	})
}

func TestNewRegistersOnProvidedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) }, "duplicate registration on the same registry")
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
