package simchip

import (
	"encoding/binary"
	"time"

	"github.com/banshee-data/uwb.hal/internal/timeutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

var le = binary.LittleEndian

// Reported by CORE_GET_DEVICE_INFO.
const (
	uciVersion     = 0x0110
	macVersion     = 0x0130
	phyVersion     = 0x0130
	uciTestVersion = 0x0110
)

var vendorInfo = []byte("simchip")

// handleLocked answers one reassembled command.
func (c *Chip) handleLocked(cmd uci.Packet) {
	switch {
	case cmd.GID.IsVendorReserved():
		// Vendor groups echo their payload, which exercises fragmentation in
		// both directions.
		c.respondLocked(cmd, cmd.Payload)
		return
	case cmd.GID == uci.GroupCore:
		c.handleCoreLocked(cmd)
	case cmd.GID == uci.GroupSessionConfig:
		c.handleSessionLocked(cmd)
	case cmd.GID == uci.GroupRangingSessionControl:
		c.handleRangingLocked(cmd)
	case cmd.GID == uci.GroupVendorAndroid:
		c.handleAndroidLocked(cmd)
	default:
		c.respondLocked(cmd, []byte{byte(uci.StatusUnknownGID)})
	}
}

func status(s uci.StatusCode) []byte { return []byte{byte(s)} }

func (c *Chip) handleCoreLocked(cmd uci.Packet) {
	switch cmd.OID {
	case uci.OpCoreDeviceReset:
		c.stopAllLocked()
		c.sessions = make(map[uint32]*session)
		c.config = make(map[uint8][]byte)
		c.respondLocked(cmd, status(uci.StatusOk))
		c.deviceStatusLocked(uci.DeviceStateReady)

	case uci.OpCoreGetDeviceInfo:
		b := status(uci.StatusOk)
		b = le.AppendUint16(b, uciVersion)
		b = le.AppendUint16(b, macVersion)
		b = le.AppendUint16(b, phyVersion)
		b = le.AppendUint16(b, uciTestVersion)
		b = append(b, byte(len(vendorInfo)))
		c.respondLocked(cmd, append(b, vendorInfo...))

	case uci.OpCoreGetCapsInfo:
		c.respondLocked(cmd, appendTLVs(status(uci.StatusOk), Capabilities))

	case uci.OpCoreSetConfig:
		tlvs, ok := parseTLVs(cmd.Payload)
		if !ok {
			c.respondLocked(cmd, []byte{byte(uci.StatusSyntaxError), 0})
			return
		}
		for _, t := range tlvs {
			c.config[t.ID] = t.Value
		}
		c.respondLocked(cmd, []byte{byte(uci.StatusOk), 0})

	case uci.OpCoreGetConfig:
		ids, ok := parseIDs(cmd.Payload)
		if !ok {
			c.respondLocked(cmd, []byte{byte(uci.StatusSyntaxError), 0})
			return
		}
		tlvs, st := lookup(c.config, ids)
		c.respondLocked(cmd, appendTLVs(status(st), tlvs))

	default:
		c.respondLocked(cmd, status(uci.StatusUnknownOID))
	}
}

func (c *Chip) handleSessionLocked(cmd uci.Packet) {
	if cmd.OID == uci.OpSessionGetCount {
		c.respondLocked(cmd, []byte{byte(uci.StatusOk), byte(len(c.sessions))})
		return
	}
	if len(cmd.Payload) < 4 {
		c.respondLocked(cmd, status(uci.StatusSyntaxError))
		return
	}
	id := le.Uint32(cmd.Payload)
	s, exists := c.sessions[id]

	switch cmd.OID {
	case uci.OpSessionInit:
		switch {
		case len(cmd.Payload) < 5:
			c.respondLocked(cmd, status(uci.StatusSyntaxError))
		case exists:
			c.respondLocked(cmd, status(uci.StatusSessionDuplicate))
		case len(c.sessions) >= MaxSessions:
			c.respondLocked(cmd, status(uci.StatusMaxSessionsExceeded))
		default:
			s = &session{id: id, kind: cmd.Payload[4], state: uci.SessionStateInit, config: make(map[uint8][]byte)}
			c.sessions[id] = s
			c.respondLocked(cmd, status(uci.StatusOk))
			c.sessionStatusLocked(s, uci.ReasonStateChangeWithSessionManagementCommands)
		}

	case uci.OpSessionDeinit:
		if !exists {
			c.respondLocked(cmd, status(uci.StatusSessionNotExist))
			return
		}
		s.stop()
		delete(c.sessions, id)
		s.state = uci.SessionStateDeinit
		c.respondLocked(cmd, status(uci.StatusOk))
		c.sessionStatusLocked(s, uci.ReasonStateChangeWithSessionManagementCommands)

	case uci.OpSessionSetAppConfig:
		if !exists {
			c.respondLocked(cmd, []byte{byte(uci.StatusSessionNotExist), 0})
			return
		}
		tlvs, ok := parseTLVs(cmd.Payload[4:])
		if !ok {
			c.respondLocked(cmd, []byte{byte(uci.StatusSyntaxError), 0})
			return
		}
		for _, t := range tlvs {
			s.config[t.ID] = t.Value
		}
		c.respondLocked(cmd, []byte{byte(uci.StatusOk), 0})
		if s.state == uci.SessionStateInit {
			s.state = uci.SessionStateIdle
			c.sessionStatusLocked(s, uci.ReasonStateChangeWithSessionManagementCommands)
		}

	case uci.OpSessionGetAppConfig:
		if !exists {
			c.respondLocked(cmd, []byte{byte(uci.StatusSessionNotExist), 0})
			return
		}
		ids, ok := parseIDs(cmd.Payload[4:])
		if !ok {
			c.respondLocked(cmd, []byte{byte(uci.StatusSyntaxError), 0})
			return
		}
		tlvs, st := lookup(s.config, ids)
		c.respondLocked(cmd, appendTLVs(status(st), tlvs))

	case uci.OpSessionGetState:
		if !exists {
			c.respondLocked(cmd, []byte{byte(uci.StatusSessionNotExist), 0})
			return
		}
		c.respondLocked(cmd, []byte{byte(uci.StatusOk), byte(s.state)})

	case uci.OpSessionUpdateControllerMulticastList:
		if !exists {
			c.respondLocked(cmd, status(uci.StatusSessionNotExist))
			return
		}
		c.respondLocked(cmd, status(uci.StatusOk))

	default:
		c.respondLocked(cmd, status(uci.StatusUnknownOID))
	}
}

func (c *Chip) handleRangingLocked(cmd uci.Packet) {
	if len(cmd.Payload) < 4 {
		c.respondLocked(cmd, status(uci.StatusSyntaxError))
		return
	}
	s, exists := c.sessions[le.Uint32(cmd.Payload)]

	switch cmd.OID {
	case uci.OpRangeStart:
		switch {
		case !exists:
			c.respondLocked(cmd, status(uci.StatusSessionNotExist))
		case s.state == uci.SessionStateInit:
			c.respondLocked(cmd, status(uci.StatusSessionNotConfigured))
		case s.state == uci.SessionStateActive:
			c.respondLocked(cmd, status(uci.StatusSessionActive))
		default:
			s.state = uci.SessionStateActive
			c.respondLocked(cmd, status(uci.StatusOk))
			c.sessionStatusLocked(s, uci.ReasonStateChangeWithSessionManagementCommands)
			c.startRangingLocked(s)
		}

	case uci.OpRangeStop:
		switch {
		case !exists:
			c.respondLocked(cmd, status(uci.StatusSessionNotExist))
		case s.state != uci.SessionStateActive:
			c.respondLocked(cmd, status(uci.StatusRejected))
		default:
			s.stop()
			s.state = uci.SessionStateIdle
			c.respondLocked(cmd, status(uci.StatusOk))
			c.sessionStatusLocked(s, uci.ReasonStateChangeWithSessionManagementCommands)
		}

	case uci.OpRangeGetRangingCount:
		if !exists {
			c.respondLocked(cmd, le.AppendUint32(status(uci.StatusSessionNotExist), 0))
			return
		}
		c.respondLocked(cmd, le.AppendUint32(status(uci.StatusOk), s.count))

	default:
		c.respondLocked(cmd, status(uci.StatusUnknownOID))
	}
}

func (c *Chip) handleAndroidLocked(cmd uci.Packet) {
	switch cmd.OID {
	case uci.OpAndroidGetPowerStats:
		up := uint32(timeutil.Or(c.Clock).Since(c.openedAt) / time.Millisecond)
		active := c.commands
		if active > up {
			active = up
		}
		b := status(uci.StatusOk)
		b = le.AppendUint32(b, up-active) // idle
		b = le.AppendUint32(b, active/2)  // tx
		b = le.AppendUint32(b, active/2)  // rx
		b = le.AppendUint32(b, c.commands)
		c.respondLocked(cmd, b)

	case uci.OpAndroidSetCountryCode:
		if len(cmd.Payload) != 2 {
			c.respondLocked(cmd, status(uci.StatusInvalidParam))
			return
		}
		c.country = string(cmd.Payload)
		c.respondLocked(cmd, status(uci.StatusOk))

	default:
		c.respondLocked(cmd, status(uci.StatusUnknownOID))
	}
}

// CountryCode returns the last code set through the Android group.
func (c *Chip) CountryCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.country
}

func parseTLVs(b []byte) ([]uci.TLV, bool) {
	if len(b) < 1 {
		return nil, false
	}
	n := int(b[0])
	b = b[1:]
	out := make([]uci.TLV, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 2 || len(b) < 2+int(b[1]) {
			return nil, false
		}
		l := int(b[1])
		out = append(out, uci.TLV{ID: b[0], Value: append([]byte(nil), b[2:2+l]...)})
		b = b[2+l:]
	}
	return out, true
}

func parseIDs(b []byte) ([]uint8, bool) {
	if len(b) < 1 || len(b) < 1+int(b[0]) {
		return nil, false
	}
	return b[1 : 1+int(b[0])], true
}

// lookup returns the stored values for ids; an empty id list asks for
// everything. Missing ids make the status INVALID_PARAM.
func lookup(store map[uint8][]byte, ids []uint8) ([]uci.TLV, uci.StatusCode) {
	st := uci.StatusOk
	var out []uci.TLV
	if len(ids) == 0 {
		for id := 0; id <= 0xff; id++ {
			if v, ok := store[uint8(id)]; ok {
				out = append(out, uci.TLV{ID: uint8(id), Value: v})
			}
		}
		return out, st
	}
	for _, id := range ids {
		v, ok := store[id]
		if !ok {
			st = uci.StatusInvalidParam
			continue
		}
		out = append(out, uci.TLV{ID: id, Value: v})
	}
	return out, st
}

func appendTLVs(dst []byte, tlvs []uci.TLV) []byte {
	dst = append(dst, byte(len(tlvs)))
	for _, t := range tlvs {
		dst = append(dst, t.ID, byte(len(t.Value)))
		dst = append(dst, t.Value...)
	}
	return dst
}
