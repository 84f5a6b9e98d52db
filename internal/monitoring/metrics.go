package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uwb_uci"

// Metrics holds the counters for the UCI control path. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	fragments      *prometheus.CounterVec
	fragmentBytes  *prometheus.CounterVec
	packets        *prometheus.CounterVec
	frameErrors    prometheus.Counter
	discards       prometheus.Counter
	decodeFailures *prometheus.CounterVec
	events         *prometheus.CounterVec
	dropped        prometheus.Counter
	transportErrs  prometheus.Counter
	hardwareEvents *prometheus.CounterVec
	queueDepth     prometheus.GaugeFunc
	depth          func() float64
}

// NewMetrics creates the UCI counters and registers them with reg. Passing
// nil uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "UCI control fragments by direction.",
		}, []string{"direction"}),
		fragmentBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragment_bytes_total",
			Help:      "UCI control fragment bytes by direction.",
		}, []string{"direction"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Logical UCI packets by direction and message type.",
		}, []string{"direction", "type"}),
		frameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Inbound fragments rejected for a malformed header or length.",
		}),
		discards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassembly_discards_total",
			Help:      "Partial fragment chains dropped before completion.",
		}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Reassembled packets that did not decode, by reason.",
		}, []string{"reason"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_events_total",
			Help:      "Events delivered to the dispatch queue, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events discarded because the consumer had closed the queue.",
		}),
		transportErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Outbound fragment writes that failed or were short.",
		}),
		hardwareEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_events_total",
			Help:      "HAL events by kind and status.",
		}, []string{"event", "status"}),
	}
	m.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatch_queue_depth",
		Help:      "Events waiting for the consumer.",
	}, func() float64 {
		if m.depth == nil {
			return 0
		}
		return m.depth()
	})
	reg.MustRegister(m.fragments, m.fragmentBytes, m.packets, m.frameErrors, m.discards,
		m.decodeFailures, m.events, m.dropped, m.transportErrs, m.hardwareEvents, m.queueDepth)
	return m
}

// SetQueueDepthFunc installs the function sampled by the queue depth gauge.
// It must be called before the registry is scraped concurrently.
func (m *Metrics) SetQueueDepthFunc(f func() int) {
	if m == nil {
		return
	}
	m.depth = func() float64 { return float64(f()) }
}

func (m *Metrics) FragmentIn(n int) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues("in").Inc()
	m.fragmentBytes.WithLabelValues("in").Add(float64(n))
}

func (m *Metrics) FragmentOut(n int) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues("out").Inc()
	m.fragmentBytes.WithLabelValues("out").Add(float64(n))
}

// Packet counts one logical packet; direction is "in" or "out".
func (m *Metrics) Packet(direction, msgType string) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) FrameError() {
	if m == nil {
		return
	}
	m.frameErrors.Inc()
}

func (m *Metrics) ReassemblyDiscard() {
	if m == nil {
		return
	}
	m.discards.Inc()
}

// DecodeFailure counts a packet that did not decode; reason is
// "unsupported" or "malformed".
func (m *Metrics) DecodeFailure(reason string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventDispatched(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) TransportError() {
	if m == nil {
		return
	}
	m.transportErrs.Inc()
}

func (m *Metrics) HardwareEvent(event, status string) {
	if m == nil {
		return
	}
	m.hardwareEvents.WithLabelValues(event, status).Inc()
}
