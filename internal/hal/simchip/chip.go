// Package simchip is an in-process UWB controller. It answers UCI commands
// the way a FiRa device does, closely enough to run the daemon and the
// tests without hardware.
package simchip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
	"github.com/banshee-data/uwb.hal/internal/timeutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

const (
	// DefaultRangingInterval is the period of range data notifications.
	DefaultRangingInterval = 200 * time.Millisecond
	// MaxSessions is the number of sessions the chip accepts.
	MaxSessions = 5

	appConfigDstMacAddress = 0x07
)

var (
	ErrNotOpen = errors.New("simchip: not open")
	ErrDead    = errors.New("simchip: chip is dead")
)

var logf = monitoring.Component("simchip")

// Capabilities are reported by CORE_GET_CAPS_INFO.
var Capabilities = []uci.TLV{
	{ID: 0x00, Value: []byte{0x01, 0x01, 0x01, 0x03}}, // PHY version range 1.1-1.3
	{ID: 0x01, Value: []byte{0x01, 0x01, 0x01, 0x03}}, // MAC version range 1.1-1.3
	{ID: 0x02, Value: []byte{0x03}},                   // device roles: responder, initiator
	{ID: 0x03, Value: []byte{0x1f, 0x00}},             // ranging methods
}

type delivery func(cb hal.Callback)

// Chip implements hal.Chip. Unlike hardware it may be opened again after
// Close, and Kill simulates the controller process dying.
type Chip struct {
	// RangingInterval overrides DefaultRangingInterval.
	RangingInterval time.Duration
	// MaxPayloadSize limits the payload of each outbound fragment; zero
	// means uci.MaxPayloadSize.
	MaxPayloadSize int
	// Clock drives ranging and power stats; nil means the real clock.
	Clock timeutil.Clock

	mu        sync.Mutex
	open      bool
	dead      bool
	out       *dispatch.Queue[delivery]
	pumpDone  chan struct{}
	reasm     *uci.Reassembler
	config    map[uint8][]byte
	sessions  map[uint32]*session
	country   string
	openedAt  time.Time
	commands  uint32
	deaths    map[int]func()
	nextDeath int
	ranging   sync.WaitGroup
}

type session struct {
	id      uint32
	kind    uint8
	state   uci.SessionState
	config  map[uint8][]byte
	seq     uint32
	count   uint32
	stopped chan struct{}
}

// New returns a closed chip.
func New() *Chip {
	return &Chip{deaths: make(map[int]func())}
}

func (c *Chip) interval() time.Duration {
	if c.RangingInterval > 0 {
		return c.RangingInterval
	}
	return DefaultRangingInterval
}

// Open resets the controller and reports EventOpenCplt followed by
// CORE_DEVICE_STATUS_NTF(READY).
func (c *Chip) Open(ctx context.Context, cb hal.Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return fmt.Errorf("simchip: already open")
	}
	c.open = true
	c.dead = false
	c.out = dispatch.NewQueue[delivery]()
	c.pumpDone = make(chan struct{})
	c.reasm = uci.NewReassembler()
	c.config = make(map[uint8][]byte)
	c.sessions = make(map[uint32]*session)
	c.openedAt = timeutil.Or(c.Clock).Now()
	c.commands = 0
	go pump(cb, c.out, c.pumpDone)

	c.eventLocked(hal.EventOpenCplt, hal.StatusOK)
	c.deviceStatusLocked(uci.DeviceStateReady)
	return nil
}

// pump delivers queued fragments and events to cb in order.
func pump(cb hal.Callback, out *dispatch.Queue[delivery], done chan struct{}) {
	defer close(done)
	for {
		d, err := out.Recv(context.Background())
		if err != nil {
			return
		}
		d(cb)
	}
}

// Close stops ranging, reports EventCloseCplt and waits for delivery to
// drain.
func (c *Chip) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.dead = false
	c.stopAllLocked()
	c.eventLocked(hal.EventCloseCplt, hal.StatusOK)
	out, done := c.out, c.pumpDone
	c.mu.Unlock()

	c.ranging.Wait()
	out.Close()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill simulates the controller going away: registered death callbacks run
// and the chip stops answering until it is closed and opened again.
func (c *Chip) Kill() {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	if c.open {
		c.stopAllLocked()
	}
	fns := make([]func(), 0, len(c.deaths))
	for _, f := range c.deaths {
		fns = append(fns, f)
	}
	c.deaths = make(map[int]func())
	c.mu.Unlock()

	c.ranging.Wait()
	logf("killed, notifying %d death recipients", len(fns))
	for _, f := range fns {
		f()
	}
}

func (c *Chip) usableLocked() error {
	switch {
	case c.dead:
		return ErrDead
	case !c.open:
		return ErrNotOpen
	}
	return nil
}

// CoreInit reports EventPostInitCplt.
func (c *Chip) CoreInit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	c.eventLocked(hal.EventPostInitCplt, hal.StatusOK)
	return nil
}

// SessionInit succeeds for sessions created with SESSION_INIT.
func (c *Chip) SessionInit(_ context.Context, sessionID int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return err
	}
	if _, ok := c.sessions[uint32(sessionID)]; !ok {
		return &hal.ChipError{Status: hal.StatusFailed}
	}
	return nil
}

// SendUciMessage accepts one command fragment. Responses and notifications
// are delivered asynchronously through the callback.
func (c *Chip) SendUciMessage(_ context.Context, fragment []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.usableLocked(); err != nil {
		return 0, err
	}
	p, err := c.reasm.Feed(fragment)
	if err != nil {
		c.genericErrorLocked(uci.StatusSyntaxError)
		return len(fragment), nil
	}
	if p == nil {
		return len(fragment), nil
	}
	if p.Type != uci.MessageTypeCommand {
		c.genericErrorLocked(uci.StatusSyntaxError)
		return len(fragment), nil
	}
	c.commands++
	c.handleLocked(*p)
	return len(fragment), nil
}

func (c *Chip) LinkToDeath(onDeath func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return nil, ErrDead
	}
	id := c.nextDeath
	c.nextDeath++
	c.deaths[id] = onDeath
	return func() {
		c.mu.Lock()
		delete(c.deaths, id)
		c.mu.Unlock()
	}, nil
}

func (c *Chip) eventLocked(kind hal.EventKind, status hal.Status) {
	c.out.Send(func(cb hal.Callback) { cb.OnHalEvent(kind, status) })
}

// emitLocked queues p as wire fragments.
func (c *Chip) emitLocked(p uci.Packet) {
	for _, f := range p.Fragments(c.MaxPayloadSize) {
		c.out.Send(func(cb hal.Callback) { cb.OnUciMessage(f) })
	}
}

func (c *Chip) respondLocked(cmd uci.Packet, payload []byte) {
	c.emitLocked(uci.Packet{Type: uci.MessageTypeResponse, GID: cmd.GID, OID: cmd.OID, Payload: payload})
}

func (c *Chip) notifyLocked(gid uci.GroupID, oid uint8, payload []byte) {
	c.emitLocked(uci.Packet{Type: uci.MessageTypeNotification, GID: gid, OID: oid, Payload: payload})
}

func (c *Chip) deviceStatusLocked(state uci.DeviceState) {
	c.notifyLocked(uci.GroupCore, uci.OpCoreDeviceStatus, []byte{byte(state)})
}

func (c *Chip) genericErrorLocked(status uci.StatusCode) {
	c.notifyLocked(uci.GroupCore, uci.OpCoreGenericError, []byte{byte(status)})
}

func (c *Chip) sessionStatusLocked(s *session, reason uci.ReasonCode) {
	b := binary.LittleEndian.AppendUint32(nil, s.id)
	c.notifyLocked(uci.GroupSessionConfig, uci.OpSessionStatus, append(b, byte(s.state), byte(reason)))
}

func (c *Chip) stopAllLocked() {
	for _, s := range c.sessions {
		s.stop()
	}
}

func (s *session) stop() {
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
}

// startRangingLocked runs a goroutine that emits one short-address two-way
// measurement per interval until the session stops.
func (c *Chip) startRangingLocked(s *session) {
	stopped := make(chan struct{})
	s.stopped = stopped
	interval := c.interval()
	t := timeutil.Or(c.Clock).NewTicker(interval)
	c.ranging.Add(1)
	go func() {
		defer c.ranging.Done()
		defer t.Stop()
		for {
			select {
			case <-stopped:
				return
			case <-t.C():
			}
			c.mu.Lock()
			select {
			case <-stopped:
				c.mu.Unlock()
				return
			default:
			}
			c.notifyLocked(uci.GroupRangingSessionControl, uci.OpRangeData, rangeData(s, interval))
			s.seq++
			s.count++
			c.mu.Unlock()
		}
	}()
}

// rangeData builds a RANGE_DATA payload with one short-address two-way
// measurement. The peer address comes from DST_MAC_ADDRESS when configured.
func rangeData(s *session, interval time.Duration) []byte {
	le := binary.LittleEndian
	b := le.AppendUint32(nil, s.seq)
	b = le.AppendUint32(b, s.id)
	b = append(b, 0) // rcr indicator
	b = le.AppendUint32(b, uint32(interval/time.Millisecond))
	b = append(b, uci.MeasurementTwoWay, 0, uci.ShortMacAddress)
	b = append(b, make([]byte, 8)...)
	b = append(b, 1)

	peer := uint16(0x0001)
	if v := s.config[appConfigDstMacAddress]; len(v) >= 2 {
		peer = le.Uint16(v)
	}
	b = le.AppendUint16(b, peer)
	b = append(b, byte(uci.StatusOk), 0) // status, nlos
	b = le.AppendUint16(b, uint16(100+s.seq%50))
	b = append(b, make([]byte, 6)...) // aoa azimuth and elevation with fom
	b = append(b, make([]byte, 6)...) // destination aoa with fom
	b = append(b, 0)                  // slot index
	return append(b, make([]byte, 12)...)
}
