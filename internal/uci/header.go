// Package uci implements the UWB Command Interface control packet framing:
// header parsing, outbound fragmentation, inbound reassembly and decoding of
// responses and notifications into typed messages.
package uci

import "fmt"

// HeaderSize is the size of a control packet header in bytes.
const HeaderSize = 4

// MaxPayloadSize is the largest payload a single control fragment can carry.
const MaxPayloadSize = 255

const (
	mtShift  = 5
	mtMask   = 0x07
	pbfMask  = 0x10
	gidMask  = 0x0f
	oidMask  = 0x3f
	lenIndex = 3
)

// MessageType is the 3-bit MT field of a UCI header.
type MessageType uint8

const (
	MessageTypeData         MessageType = 0
	MessageTypeCommand      MessageType = 1
	MessageTypeResponse     MessageType = 2
	MessageTypeNotification MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeData:
		return "data"
	case MessageTypeCommand:
		return "command"
	case MessageTypeResponse:
		return "response"
	case MessageTypeNotification:
		return "notification"
	}
	return fmt.Sprintf("reserved(%d)", uint8(t))
}

// GroupID identifies the command family of a control packet.
type GroupID uint8

const (
	GroupCore                  GroupID = 0x0
	GroupSessionConfig         GroupID = 0x1
	GroupRangingSessionControl GroupID = 0x2
	GroupDataControl           GroupID = 0x3
	GroupVendorReserved9       GroupID = 0x9
	GroupVendorReservedA       GroupID = 0xa
	GroupVendorReservedB       GroupID = 0xb
	GroupVendorAndroid         GroupID = 0xc
	GroupTest                  GroupID = 0xd
	GroupVendorReservedE       GroupID = 0xe
	GroupVendorReservedF       GroupID = 0xf
)

// IsVendorReserved reports whether the group carries opaque vendor payloads.
// The Android group is vendor space too but has a known opcode table.
func (g GroupID) IsVendorReserved() bool {
	switch g {
	case GroupVendorReserved9, GroupVendorReservedA, GroupVendorReservedB,
		GroupVendorReservedE, GroupVendorReservedF:
		return true
	}
	return false
}

func (g GroupID) String() string {
	switch g {
	case GroupCore:
		return "core"
	case GroupSessionConfig:
		return "session_config"
	case GroupRangingSessionControl:
		return "ranging_session_control"
	case GroupDataControl:
		return "data_control"
	case GroupVendorAndroid:
		return "vendor_android"
	case GroupTest:
		return "test"
	}
	if g.IsVendorReserved() {
		return fmt.Sprintf("vendor_reserved_%x", uint8(g))
	}
	return fmt.Sprintf("gid(0x%x)", uint8(g))
}

// Header is the decoded 4-byte control packet header.
type Header struct {
	Type MessageType
	// PBF is the packet boundary flag: set on every fragment but the last.
	PBF        bool
	GID        GroupID
	OID        uint8
	PayloadLen uint8
}

// ParseHeader decodes the header at the start of b. It only checks that a
// full header is present; payload length agreement is checked by callers.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &FrameError{Reason: fmt.Sprintf("short header: %d bytes", len(b))}
	}
	return Header{
		Type:       MessageType((b[0] >> mtShift) & mtMask),
		PBF:        b[0]&pbfMask != 0,
		GID:        GroupID(b[0] & gidMask),
		OID:        b[1] & oidMask,
		PayloadLen: b[lenIndex],
	}, nil
}

// AppendTo appends the wire form of the header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	b0 := byte(h.Type&mtMask)<<mtShift | byte(h.GID)&gidMask
	if h.PBF {
		b0 |= pbfMask
	}
	return append(dst, b0, h.OID&oidMask, 0x00, h.PayloadLen)
}

// Opcode returns the GID/OID pair of the header.
func (h Header) Opcode() Opcode {
	return Opcode{GID: h.GID, OID: h.OID}
}

// Opcode identifies a message within its group.
type Opcode struct {
	GID GroupID
	OID uint8
}

func (o Opcode) String() string {
	return fmt.Sprintf("%s/0x%02x", o.GID, o.OID)
}
