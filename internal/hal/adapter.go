package hal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

// State is the adapter lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateOpen
	StateCoreInitialized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateCoreInitialized:
		return "core_initialized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the adapter's optional collaborators and limits.
type Config struct {
	// Logger records commands, responses and notifications. Nil disables
	// packet logging.
	Logger PacketLogger
	// Metrics may be nil.
	Metrics *monitoring.Metrics
	// MaxPayloadSize is the largest outbound fragment payload; zero means
	// uci.MaxPayloadSize.
	MaxPayloadSize int
	// MaxPacketSize bounds inbound reassembly; zero means
	// uci.DefaultMaxPacketSize.
	MaxPacketSize int
}

// session is the live binding to an acquired chip.
type session struct {
	id       uuid.UUID
	chip     Chip
	unlink   func()
	cb       *inbound
	openedAt time.Time
	lost     atomic.Bool
}

// Adapter owns the chip session lifecycle and the outbound command path.
// Inbound traffic flows from the chip to the events queue without passing
// through the adapter's lock.
type Adapter struct {
	svc    Service
	events *dispatch.Queue[Event]
	cfg    Config

	mu       sync.Mutex
	state    State
	sess     *session
	sessions map[int32]struct{}
}

// NewAdapter returns an adapter that acquires its chip from svc and
// delivers events to events.
func NewAdapter(svc Service, events *dispatch.Queue[Event], cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.MaxPayloadSize <= 0 || cfg.MaxPayloadSize > uci.MaxPayloadSize {
		cfg.MaxPayloadSize = uci.MaxPayloadSize
	}
	cfg.Metrics.SetQueueDepthFunc(events.Len)
	return &Adapter{svc: svc, events: events, cfg: cfg}
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Handle returns the id of the open session.
func (a *Adapter) Handle() (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return uuid.Nil, false
	}
	return a.sess.id, true
}

// Sessions returns the initialised session ids in ascending order.
func (a *Adapter) Sessions() []int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]int32, 0, len(a.sessions))
	for id := range a.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Open acquires the chip, registers for link loss and installs the inbound
// callback. It fails with ErrInvalidState if a session is already open.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess != nil {
		return fmt.Errorf("open in state %s: %w", a.state, ErrInvalidState)
	}
	chip, err := a.svc.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire chip: %w", ErrServiceUnavailable, err)
	}

	s := &session{
		id:       uuid.New(),
		chip:     chip,
		cb:       newInbound(a.events, a.cfg.Logger, a.cfg.Metrics, a.cfg.MaxPacketSize),
		openedAt: time.Now(),
	}
	unlink, err := chip.LinkToDeath(func() { a.onDeath(s) })
	if err != nil {
		_ = chip.Close(ctx)
		return fmt.Errorf("%w: link to death: %w", ErrServiceUnavailable, err)
	}
	s.unlink = unlink

	if hs, ok := a.cfg.Logger.(interface{ SetHandle(uuid.UUID) }); ok {
		hs.SetHandle(s.id)
	}
	if err := chip.Open(ctx, s.cb); err != nil {
		unlink()
		// release whatever the transport acquired before it refused
		_ = chip.Close(ctx)
		return &HardwareRejectedError{Op: "open", Status: StatusOf(err), Err: err}
	}

	a.sess = s
	a.state = StateOpen
	a.sessions = make(map[int32]struct{})
	diagf("session %s open", s.id)
	return nil
}

// onDeath runs on the transport's goroutine. It must not take a.mu: the
// chip may report death from inside a call the adapter is making.
func (a *Adapter) onDeath(s *session) {
	if !s.lost.CompareAndSwap(false, true) {
		return
	}
	opsf("session %s: chip link lost", s.id)
	a.cfg.Metrics.HardwareEvent(EventError.String(), StatusFailed.String())
	s.cb.send(HardwareEvent{Event: EventError, Status: StatusFailed})
}

// Close closes the packet log, drops the link-loss registration and closes
// the chip. Closing an adapter with no open session is a no-op. In-flight
// sends are not cancelled.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	s := a.sess
	if s == nil {
		a.mu.Unlock()
		return nil
	}
	a.sess = nil
	a.state = StateClosed
	a.sessions = nil
	a.mu.Unlock()

	a.cfg.Logger.Close()
	s.unlink()
	if err := s.chip.Close(ctx); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	diagf("session %s closed after %s", s.id, time.Since(s.openedAt).Round(time.Millisecond))
	return nil
}

// current returns the open session, checking that the adapter is in one of
// the allowed states.
func (a *Adapter) current(op string, allowed ...State) (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrServiceUnavailable)
	}
	for _, st := range allowed {
		if a.state == st {
			return a.sess, nil
		}
	}
	return nil, fmt.Errorf("%s in state %s: %w", op, a.state, ErrInvalidState)
}

// CoreInit asks the chip to run its core initialisation.
func (a *Adapter) CoreInit(ctx context.Context) error {
	s, err := a.current("core init", StateOpen, StateCoreInitialized)
	if err != nil {
		return err
	}
	if err := s.chip.CoreInit(ctx); err != nil {
		return &HardwareRejectedError{Op: "core init", Status: StatusOf(err), Err: err}
	}

	a.mu.Lock()
	if a.sess == s {
		a.state = StateCoreInitialized
	}
	a.mu.Unlock()
	return nil
}

// SessionInit asks the chip to initialise one ranging session.
func (a *Adapter) SessionInit(ctx context.Context, sessionID int32) error {
	s, err := a.current("session init", StateCoreInitialized)
	if err != nil {
		return err
	}
	if err := s.chip.SessionInit(ctx, sessionID); err != nil {
		return &HardwareRejectedError{Op: fmt.Sprintf("session init %d", sessionID), Status: StatusOf(err), Err: err}
	}

	a.mu.Lock()
	if a.sess == s {
		a.sessions[sessionID] = struct{}{}
	}
	a.mu.Unlock()
	return nil
}

// Send logs cmd and writes it to the chip as fragments of at most
// MaxPayloadSize payload bytes, in order. A failed or short write stops the
// send with a *TransportError; fragments already written are not retried.
func (a *Adapter) Send(ctx context.Context, cmd uci.Command) error {
	s, err := a.current("send", StateOpen, StateCoreInitialized)
	if err != nil {
		return err
	}

	a.cfg.Logger.LogCommand(cmd)
	a.cfg.Metrics.Packet("out", uci.MessageTypeCommand.String())
	for i, f := range cmd.Fragments(a.cfg.MaxPayloadSize) {
		tracef("tx % x", f)
		n, err := s.chip.SendUciMessage(ctx, f)
		if err != nil {
			a.cfg.Metrics.TransportError()
			return &TransportError{Fragment: i, Sent: i, Wrote: n, Want: len(f), Err: err}
		}
		if n != len(f) {
			a.cfg.Metrics.TransportError()
			return &TransportError{Fragment: i, Sent: i, Wrote: n, Want: len(f)}
		}
		a.cfg.Metrics.FragmentOut(n)
	}
	return nil
}

// LinkLost reports whether the open session's chip has reported death.
func (a *Adapter) LinkLost() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess != nil && a.sess.lost.Load()
}
