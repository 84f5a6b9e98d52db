package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.FragmentIn(10)
	m.FragmentIn(5)
	m.FragmentOut(4)
	m.Packet("in", "response")
	m.FrameError()
	m.ReassemblyDiscard()
	m.ReassemblyDiscard()
	m.DecodeFailure("unsupported")
	m.EventDispatched("notification")
	m.EventDropped()
	m.TransportError()
	m.HardwareEvent("error", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fragments.WithLabelValues("in")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.fragmentBytes.WithLabelValues("in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fragments.WithLabelValues("out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.packets.WithLabelValues("in", "response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frameErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.discards))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures.WithLabelValues("unsupported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("notification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transportErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hardwareEvents.WithLabelValues("error", "failed")))
}

func TestMetrics_QueueDepth(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueDepth))

	depth := 3
	m.SetQueueDepthFunc(func() int { return depth })
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FragmentIn(1)
		m.FragmentOut(1)
		m.Packet("out", "command")
		m.FrameError()
		m.ReassemblyDiscard()
		m.DecodeFailure("malformed")
		m.EventDispatched("response")
		m.EventDropped()
		m.TransportError()
		m.HardwareEvent("open_cplt", "ok")
		m.SetQueueDepthFunc(func() int { return 0 })
	})
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
