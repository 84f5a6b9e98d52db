package uci

import (
	"fmt"
	"sync"
)

// DefaultMaxPacketSize bounds the payload a single fragment chain may
// accumulate before it is discarded.
const DefaultMaxPacketSize = 64 * 1024

// Reassembler accumulates inbound fragments into logical packets. It holds at
// most one chain in progress; a mutex serialises Feed so the transport may
// deliver fragments from any goroutine.
type Reassembler struct {
	// MaxPacketSize caps the accumulated payload; zero means DefaultMaxPacketSize.
	MaxPacketSize int
	// OnDiscard, if set, is called with the header of a chain that was
	// dropped before completion and the number of payload bytes it held.
	OnDiscard func(stale Header, pending int)

	mu      sync.Mutex
	active  bool
	head    Header
	payload []byte
}

// NewReassembler returns an empty reassembler with the default size limit.
func NewReassembler() *Reassembler {
	return &Reassembler{MaxPacketSize: DefaultMaxPacketSize}
}

// Feed consumes one fragment. It returns the completed packet when fragment
// ends a chain (PBF clear) and nil while a chain is still open.
//
// A fragment whose header length disagrees with its actual size is rejected
// with a FrameError and leaves the chain in progress untouched. A fragment
// whose type, group or opcode differs from the open chain restarts
// accumulation from that fragment; the stale chain is reported through
// OnDiscard.
func (r *Reassembler) Feed(fragment []byte) (*Packet, error) {
	h, err := ParseHeader(fragment)
	if err != nil {
		return nil, err
	}
	if got := len(fragment) - HeaderSize; got != int(h.PayloadLen) {
		return nil, &FrameError{Reason: fmt.Sprintf("header length %d, payload %d bytes", h.PayloadLen, got)}
	}
	body := fragment[HeaderSize:]

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active && (r.head.Type != h.Type || r.head.GID != h.GID || r.head.OID != h.OID) {
		r.discardLocked()
	}
	if !r.active {
		r.active = true
		r.head = h
		r.payload = nil
	}

	limit := r.MaxPacketSize
	if limit <= 0 {
		limit = DefaultMaxPacketSize
	}
	if len(r.payload)+len(body) > limit {
		pending := len(r.payload) + len(body)
		r.discardLocked()
		return nil, &FrameError{Reason: fmt.Sprintf("packet exceeds %d bytes (%d accumulated)", limit, pending)}
	}
	r.payload = append(r.payload, body...)

	if h.PBF {
		return nil, nil
	}

	p := &Packet{
		Type:    r.head.Type,
		GID:     r.head.GID,
		OID:     r.head.OID,
		Payload: r.payload,
	}
	if p.Payload == nil {
		p.Payload = []byte{}
	}
	r.resetLocked()
	return p, nil
}

// Pending reports whether a chain is in progress and how many payload bytes
// it holds.
func (r *Reassembler) Pending() (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, len(r.payload)
}

// Reset drops any chain in progress without reporting it.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Reassembler) discardLocked() {
	if r.OnDiscard != nil {
		r.OnDiscard(r.head, len(r.payload))
	}
	r.resetLocked()
}

func (r *Reassembler) resetLocked() {
	r.active = false
	r.head = Header{}
	r.payload = nil
}
