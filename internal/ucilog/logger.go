// Package ucilog records UCI control traffic to pcap files and sqlite.
// Logging is best-effort: sink failures are reported on the ops stream and
// never reach the caller.
package ucilog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/uwb.hal/internal/uci"
)

// Mode selects how much traffic is recorded.
type Mode int

const (
	// ModeDisabled records nothing.
	ModeDisabled Mode = iota
	// ModeFiltered drops packets that may carry keys, addresses or location.
	ModeFiltered
	// ModeEnabled records every packet.
	ModeEnabled
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeFiltered:
		return "filtered"
	case ModeEnabled:
		return "enabled"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "disabled":
		return ModeDisabled, nil
	case "filtered":
		return ModeFiltered, nil
	case "enabled":
		return ModeEnabled, nil
	}
	return ModeDisabled, fmt.Errorf("ucilog: unknown log mode %q", s)
}

// Entry is one logged packet.
type Entry struct {
	Time    time.Time
	Handle  uuid.UUID
	Type    uci.MessageType
	GID     uci.GroupID
	OID     uint8
	Payload []byte
}

// Packet returns the entry as a logical packet.
func (e Entry) Packet() uci.Packet {
	return uci.Packet{Type: e.Type, GID: e.GID, OID: e.OID, Payload: e.Payload}
}

// Sink stores entries. Close releases per-session resources; a later Record
// must reacquire them.
type Sink interface {
	Record(e Entry) error
	Close() error
}

// Logger applies a Mode and fans entries out to its sinks. A nil *Logger
// records nothing.
type Logger struct {
	mode  Mode
	sinks []Sink
	// Now returns the entry timestamp; tests may replace it.
	Now func() time.Time

	mu     sync.Mutex
	handle uuid.UUID
}

// New returns a logger with the given mode and sinks.
func New(mode Mode, sinks ...Sink) *Logger {
	return &Logger{mode: mode, sinks: sinks, Now: time.Now}
}

// Mode returns the logger's mode.
func (l *Logger) Mode() Mode {
	if l == nil {
		return ModeDisabled
	}
	return l.mode
}

// SetHandle tags subsequent entries with a session handle id.
func (l *Logger) SetHandle(id uuid.UUID) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.handle = id
	l.mu.Unlock()
}

// LogCommand records an outbound command.
func (l *Logger) LogCommand(cmd uci.Command) {
	l.log(cmd.Packet())
}

// LogResponse records an inbound response packet.
func (l *Logger) LogResponse(p uci.Packet) {
	l.log(p)
}

// LogNotification records an inbound notification packet.
func (l *Logger) LogNotification(p uci.Packet) {
	l.log(p)
}

// Close closes every sink. Sink errors are logged and dropped.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			opsf("close sink %T: %v", s, err)
		}
	}
}

func (l *Logger) log(p uci.Packet) {
	if l == nil || !Allowed(l.mode, p) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Time:    l.Now(),
		Handle:  l.handle,
		Type:    p.Type,
		GID:     p.GID,
		OID:     p.OID,
		Payload: p.Payload,
	}
	tracef("%s %s len=%d", e.Type, p.Opcode(), len(e.Payload))
	for _, s := range l.sinks {
		if err := s.Record(e); err != nil {
			opsf("record %s %s to %T: %v", e.Type, p.Opcode(), s, err)
		}
	}
}

// Allowed reports whether mode permits logging p.
func Allowed(mode Mode, p uci.Packet) bool {
	switch mode {
	case ModeEnabled:
		return true
	case ModeFiltered:
		return !sensitive(p)
	}
	return false
}

// sensitive matches packets withheld in filtered mode: app config commands
// carry session keys and peer addresses, range data carries location, and
// vendor payloads are opaque.
func sensitive(p uci.Packet) bool {
	switch {
	case p.GID.IsVendorReserved():
		return true
	case p.Type == uci.MessageTypeCommand && p.GID == uci.GroupSessionConfig && p.OID == uci.OpSessionSetAppConfig:
		return true
	case p.Type == uci.MessageTypeNotification && p.GID == uci.GroupRangingSessionControl && p.OID == uci.OpRangeData:
		return true
	}
	return false
}
