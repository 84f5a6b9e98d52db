package grpcchip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
)

var (
	ErrNotOpen  = errors.New("grpcchip: chip not open")
	ErrLinkDown = errors.New("grpcchip: link down")
)

var logf = monitoring.Component("grpcchip")

// Ensure Chip implements hal.Chip.
var _ hal.Chip = (*Chip)(nil)

// Chip is the client side of the service. Unlike a UART chip it can be
// opened again after Close, including after the link went down.
type Chip struct {
	conn grpc.ClientConnInterface

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closing   bool
	dead      bool
	deaths    map[int]func()
	nextDeath int
}

// New returns a closed chip that talks over conn.
func New(conn grpc.ClientConnInterface) *Chip {
	return &Chip{conn: conn, deaths: make(map[int]func())}
}

// Open starts the frame stream and waits for the server to report the chip
// open. Frames are delivered to cb from a single goroutine.
func (c *Chip) Open(ctx context.Context, cb hal.Callback) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("grpcchip: already open")
	}
	c.mu.Unlock()

	// The stream outlives ctx; ctx only bounds the wait for the first frame.
	sctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	stream, err := c.conn.NewStream(sctx, &serviceDesc.Streams[0], methodOpen)
	if err == nil {
		err = stream.SendMsg(&emptypb.Empty{})
	}
	if err == nil {
		err = stream.CloseSend()
	}
	first := new(wrapperspb.BytesValue)
	if err == nil {
		err = stream.RecvMsg(first)
	}
	if !stop() {
		cancel()
		return fmt.Errorf("grpcchip: open: %w", ctx.Err())
	}
	if err != nil {
		cancel()
		return fmt.Errorf("grpcchip: open: %w", err)
	}
	if !bytes.Equal(first.GetValue(), []byte{tagReady}) {
		cancel()
		return fmt.Errorf("grpcchip: open: unexpected first frame % x", first.GetValue())
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.closing = false
	c.dead = false
	c.mu.Unlock()
	go c.readLoop(stream, cb, done)
	return nil
}

func (c *Chip) readLoop(stream grpc.ClientStream, cb hal.Callback, done chan struct{}) {
	defer close(done)
	for {
		f := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(f); err != nil {
			c.streamEnded(err)
			return
		}
		b := f.GetValue()
		if len(b) == 0 {
			continue
		}
		switch b[0] {
		case tagFragment:
			cb.OnUciMessage(b[1:])
		case tagEvent:
			if len(b) == 3 {
				cb.OnHalEvent(hal.EventKind(b[1]), hal.Status(b[2]))
			}
		default:
			logf("dropping frame with tag %#x", b[0])
		}
	}
}

// streamEnded treats any end of stream not caused by Close as death.
func (c *Chip) streamEnded(err error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.dead = true
	fns := make([]func(), 0, len(c.deaths))
	for _, f := range c.deaths {
		fns = append(fns, f)
	}
	c.deaths = make(map[int]func())
	c.mu.Unlock()

	logf("chip stream ended: %v", err)
	for _, f := range fns {
		f()
	}
}

// Close asks the server to close the chip and waits for the stream to drain,
// so CloseCplt is delivered before Close returns. Closing a closed chip is a
// no-op.
func (c *Chip) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.done == nil || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	done, cancel := c.done, c.cancel
	c.mu.Unlock()

	err := c.conn.Invoke(ctx, methodClose, &emptypb.Empty{}, new(emptypb.Empty))
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	<-done

	c.mu.Lock()
	c.done = nil
	c.cancel = nil
	c.dead = false
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("grpcchip: close: %w", err)
	}
	return nil
}

func (c *Chip) usable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.dead:
		return ErrLinkDown
	case c.done == nil || c.closing:
		return ErrNotOpen
	}
	return nil
}

// CoreInit reports a non-OK hardware status as a *hal.ChipError.
func (c *Chip) CoreInit(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	out := new(wrapperspb.UInt32Value)
	if err := c.conn.Invoke(ctx, methodCoreInit, &emptypb.Empty{}, out); err != nil {
		return fmt.Errorf("grpcchip: core init: %w", err)
	}
	return chipStatus(out)
}

func (c *Chip) SessionInit(ctx context.Context, sessionID int32) error {
	if err := c.usable(); err != nil {
		return err
	}
	out := new(wrapperspb.UInt32Value)
	if err := c.conn.Invoke(ctx, methodSessionInit, wrapperspb.Int32(sessionID), out); err != nil {
		return fmt.Errorf("grpcchip: session init: %w", err)
	}
	return chipStatus(out)
}

func chipStatus(v *wrapperspb.UInt32Value) error {
	if st := hal.Status(v.GetValue()); st != hal.StatusOK {
		return &hal.ChipError{Status: st}
	}
	return nil
}

func (c *Chip) SendUciMessage(ctx context.Context, fragment []byte) (int, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}
	out := new(wrapperspb.UInt32Value)
	if err := c.conn.Invoke(ctx, methodSend, wrapperspb.Bytes(fragment), out); err != nil {
		return 0, sendError(err)
	}
	return int(out.GetValue()), nil
}

// sendError maps the server's answer back onto the package errors.
func sendError(err error) error {
	switch status.Code(err) {
	case codes.FailedPrecondition:
		return fmt.Errorf("grpcchip: send: %w: %w", ErrNotOpen, err)
	case codes.Unavailable:
		return fmt.Errorf("grpcchip: send: %w: %w", ErrLinkDown, err)
	}
	return fmt.Errorf("grpcchip: send: %w", err)
}

func (c *Chip) LinkToDeath(onDeath func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return nil, ErrLinkDown
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

// Service dials Target on first use and hands out a fresh Chip per Acquire.
type Service struct {
	Target  string
	Options []grpc.DialOption

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func (s *Service) Acquire(context.Context) (hal.Chip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		opts := append([]grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsgSize)),
		}, s.Options...)
		conn, err := grpc.NewClient(s.Target, opts...)
		if err != nil {
			return nil, fmt.Errorf("grpcchip: dial %s: %w", s.Target, err)
		}
		s.conn = conn
	}
	return New(s.conn), nil
}

// Close drops the connection.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
