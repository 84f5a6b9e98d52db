// Package uart drives a UWB chip that speaks UCI over a serial line. Each
// fragment travels as its raw bytes; the length byte of the header delimits
// fragments on the stream.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/monitoring"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

var (
	ErrNotOpen  = errors.New("uart: chip not open")
	ErrClosed   = errors.New("uart: chip closed")
	ErrLinkDown = errors.New("uart: link down")
)

var logf = monitoring.Component("uart")

// Chip implements hal.Chip over a serial port. A Chip is single use: once
// closed, acquire a new one.
type Chip struct {
	port Port
	// InitSequence holds raw fragments written by CoreInit, for modules that
	// need vendor configuration before they accept UCI commands.
	InitSequence [][]byte

	writeMu sync.Mutex

	mu        sync.Mutex
	cb        hal.Callback
	done      chan struct{}
	closing   bool
	dead      bool
	deaths    map[int]func()
	nextDeath int
}

// NewChip wraps an open port.
func NewChip(port Port) *Chip {
	return &Chip{port: port, deaths: make(map[int]func())}
}

// Open starts the reader and reports EventOpenCplt.
func (c *Chip) Open(ctx context.Context, cb hal.Callback) error {
	c.mu.Lock()
	switch {
	case c.closing:
		c.mu.Unlock()
		return ErrClosed
	case c.cb != nil:
		c.mu.Unlock()
		return fmt.Errorf("uart: chip already open")
	}
	c.cb = cb
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.readLoop(cb, done)
	return cb.OnHalEvent(hal.EventOpenCplt, hal.StatusOK)
}

// readLoop reads one fragment at a time until the port fails or closes.
func (c *Chip) readLoop(cb hal.Callback, done chan struct{}) {
	defer close(done)
	hdr := make([]byte, uci.HeaderSize)
	for {
		if _, err := io.ReadFull(c.port, hdr); err != nil {
			c.readFailed(err)
			return
		}
		frame := make([]byte, uci.HeaderSize+int(hdr[uci.HeaderSize-1]))
		copy(frame, hdr)
		if _, err := io.ReadFull(c.port, frame[uci.HeaderSize:]); err != nil {
			c.readFailed(err)
			return
		}
		cb.OnUciMessage(frame)
	}
}

func (c *Chip) readFailed(err error) {
	c.mu.Lock()
	if c.closing || c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	fns := make([]func(), 0, len(c.deaths))
	for _, f := range c.deaths {
		fns = append(fns, f)
	}
	c.deaths = map[int]func(){}
	c.mu.Unlock()

	logf("read failed, link lost: %v", err)
	for _, f := range fns {
		f()
	}
}

// Close closes the port, waits for the reader and reports EventCloseCplt.
func (c *Chip) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	cb, done := c.cb, c.done
	c.mu.Unlock()

	err := c.port.Close()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if cb != nil {
		cb.OnHalEvent(hal.EventCloseCplt, hal.StatusOK)
	}
	return err
}

func (c *Chip) callback() (hal.Callback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closing:
		return nil, ErrClosed
	case c.dead:
		return nil, ErrLinkDown
	case c.cb == nil:
		return nil, ErrNotOpen
	}
	return c.cb, nil
}

// CoreInit writes the init sequence and reports EventPostInitCplt.
func (c *Chip) CoreInit(ctx context.Context) error {
	cb, err := c.callback()
	if err != nil {
		return err
	}
	for i, f := range c.InitSequence {
		n, err := c.SendUciMessage(ctx, f)
		if err != nil {
			return fmt.Errorf("init fragment %d: %w", i, err)
		}
		if n != len(f) {
			return fmt.Errorf("init fragment %d: short write %d/%d", i, n, len(f))
		}
	}
	return cb.OnHalEvent(hal.EventPostInitCplt, hal.StatusOK)
}

// SessionInit has nothing to configure on UART modules.
func (c *Chip) SessionInit(_ context.Context, sessionID int32) error {
	_, err := c.callback()
	return err
}

func (c *Chip) SendUciMessage(_ context.Context, fragment []byte) (int, error) {
	if _, err := c.callback(); err != nil {
		return 0, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.port.Write(fragment)
}

// LinkToDeath registers onDeath to run when the reader fails while the chip
// is open.
func (c *Chip) LinkToDeath(onDeath func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || c.closing {
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

// Service opens the serial device on every Acquire.
type Service struct {
	Path         string
	Options      PortOptions
	InitSequence [][]byte
	// Open defaults to OpenSerial.
	Open PortOpener
}

func (s Service) Acquire(ctx context.Context) (hal.Chip, error) {
	open := s.Open
	if open == nil {
		open = OpenSerial
	}
	port, err := open(s.Path, s.Options)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	chip := NewChip(port)
	chip.InitSequence = s.InitSequence
	return chip, nil
}
