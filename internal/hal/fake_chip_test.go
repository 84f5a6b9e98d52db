package hal

import (
	"context"
	"errors"
	"sync"
)

// fakeChip records what the adapter does to it and lets tests drive the
// inbound side through the installed callback.
type fakeChip struct {
	mu sync.Mutex

	cb          Callback
	sent        [][]byte
	opens       int
	closes      int
	coreInits   int
	sessionIDs  []int32
	onDeath     func()
	unlinks     int
	acquireErrs int

	OpenErr        error
	CloseErr       error
	CoreInitErr    error
	SessionInitErr error
	LinkErr        error
	// SendErrAt fails the send of fragment SendErrAt (counted across the
	// chip's lifetime) when SendErr is set.
	SendErr   error
	SendErrAt int
	// ShortAt makes the fragment at that index report one byte fewer.
	ShortAt int
}

func newFakeChip() *fakeChip {
	return &fakeChip{SendErrAt: -1, ShortAt: -1}
}

func (c *fakeChip) Open(_ context.Context, cb Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.cb = cb
	return nil
}

func (c *fakeChip) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.CloseErr
}

func (c *fakeChip) CoreInit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coreInits++
	return c.CoreInitErr
}

func (c *fakeChip) SessionInit(_ context.Context, id int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SessionInitErr != nil {
		return c.SessionInitErr
	}
	c.sessionIDs = append(c.sessionIDs, id)
	return nil
}

func (c *fakeChip) SendUciMessage(_ context.Context, fragment []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.sent)
	if c.SendErr != nil && i == c.SendErrAt {
		return 0, c.SendErr
	}
	c.sent = append(c.sent, append([]byte(nil), fragment...))
	if i == c.ShortAt {
		return len(fragment) - 1, nil
	}
	return len(fragment), nil
}

func (c *fakeChip) LinkToDeath(onDeath func()) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LinkErr != nil {
		return nil, c.LinkErr
	}
	c.onDeath = onDeath
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.onDeath = nil
		c.unlinks++
	}, nil
}

// die fires the registered death callback, if any.
func (c *fakeChip) die() {
	c.mu.Lock()
	f := c.onDeath
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

func (c *fakeChip) callback() Callback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cb
}

func (c *fakeChip) sentFragments() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

var errNoChip = errors.New("no chip registered")

// flakyService fails the first n acquisitions.
func flakyService(c *fakeChip, n int) Service {
	return ServiceFunc(func(context.Context) (Chip, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.acquireErrs < n {
			c.acquireErrs++
			return nil, errNoChip
		}
		return c, nil
	})
}
