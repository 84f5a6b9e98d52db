package hal

import (
	"errors"
	"sync"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

// PacketLogger records UCI traffic. *ucilog.Logger implements it; every
// method must be best-effort and must not block for long.
type PacketLogger interface {
	LogCommand(cmd uci.Command)
	LogResponse(p uci.Packet)
	LogNotification(p uci.Packet)
	Close()
}

type nopLogger struct{}

func (nopLogger) LogCommand(uci.Command)     {}
func (nopLogger) LogResponse(uci.Packet)     {}
func (nopLogger) LogNotification(uci.Packet) {}
func (nopLogger) Close()                     {}

// inbound is the Callback installed on the chip. It turns fragments into
// events on the queue. mu serialises the whole feed-decode-send path so
// events leave in the order their final fragments arrived.
type inbound struct {
	mu      sync.Mutex
	reasm   *uci.Reassembler
	events  *dispatch.Queue[Event]
	logger  PacketLogger
	metrics *monitoring.Metrics
}

func newInbound(events *dispatch.Queue[Event], logger PacketLogger, metrics *monitoring.Metrics, maxPacket int) *inbound {
	r := uci.NewReassembler()
	if maxPacket > 0 {
		r.MaxPacketSize = maxPacket
	}
	r.OnDiscard = func(stale uci.Header, pending int) {
		metrics.ReassemblyDiscard()
		opsf("discarded partial %s %s chain (%d bytes)", stale.Type, stale.Opcode(), pending)
	}
	return &inbound{reasm: r, events: events, logger: logger, metrics: metrics}
}

func (c *inbound) OnHalEvent(kind EventKind, status Status) error {
	c.metrics.HardwareEvent(kind.String(), status.String())
	diagf("hal event %s status %s", kind, status)
	c.send(HardwareEvent{Event: kind, Status: status})
	return nil
}

func (c *inbound) OnUciMessage(fragment []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.FragmentIn(len(fragment))
	tracef("rx % x", fragment)
	p, err := c.reasm.Feed(fragment)
	if err != nil {
		c.metrics.FrameError()
		opsf("dropping fragment: %v", err)
		return nil
	}
	if p == nil {
		return nil
	}
	c.metrics.Packet("in", p.Type.String())

	switch p.Type {
	case uci.MessageTypeResponse:
		c.logger.LogResponse(*p)
	case uci.MessageTypeNotification:
		c.logger.LogNotification(*p)
	}

	msg, err := uci.Decode(*p)
	if err != nil {
		reason := "unsupported"
		if errors.Is(err, uci.ErrMalformedPayload) {
			reason = "malformed"
		}
		c.metrics.DecodeFailure(reason)
		diagf("dropping %s %s: %v", p.Type, p.Opcode(), err)
		return nil
	}
	switch m := msg.(type) {
	case uci.Response:
		c.send(ResponseEvent{Msg: m})
	case uci.Notification:
		c.send(NotificationEvent{Msg: m})
	}
	return nil
}

// send never blocks; a closed queue means the consumer is gone and the
// event is dropped.
func (c *inbound) send(ev Event) {
	if err := c.events.Send(ev); err != nil {
		c.metrics.EventDropped()
		opsf("dropping %s event: %v", ev.Kind(), err)
		return
	}
	c.metrics.EventDispatched(ev.Kind())
}
