package uci

import (
	"encoding/binary"
	"fmt"
)

// Command is an outbound control message prior to fragmentation.
type Command struct {
	GID     GroupID
	OID     uint8
	Payload []byte
}

// Opcode returns the GID/OID pair of the command.
func (c Command) Opcode() Opcode { return Opcode{GID: c.GID, OID: c.OID} }

// Packet returns the command as a logical packet of type MessageTypeCommand.
func (c Command) Packet() Packet {
	return Packet{Type: MessageTypeCommand, GID: c.GID, OID: c.OID, Payload: c.Payload}
}

// Fragments splits the command into wire fragments; see Packet.Fragments.
func (c Command) Fragments(maxPayload int) [][]byte {
	return c.Packet().Fragments(maxPayload)
}

func (c Command) String() string {
	return fmt.Sprintf("command %s (%d bytes)", c.Opcode(), len(c.Payload))
}

func DeviceResetCmd(resetConfig uint8) Command {
	return Command{GID: GroupCore, OID: OpCoreDeviceReset, Payload: []byte{resetConfig}}
}

func GetDeviceInfoCmd() Command {
	return Command{GID: GroupCore, OID: OpCoreGetDeviceInfo, Payload: []byte{}}
}

func GetCapsInfoCmd() Command {
	return Command{GID: GroupCore, OID: OpCoreGetCapsInfo, Payload: []byte{}}
}

// SetConfigCmd encodes device configuration TLVs. It fails if a value does
// not fit the one-byte length field.
func SetConfigCmd(tlvs []TLV) (Command, error) {
	p, err := appendTLVs(nil, tlvs)
	if err != nil {
		return Command{}, err
	}
	return Command{GID: GroupCore, OID: OpCoreSetConfig, Payload: p}, nil
}

// GetConfigCmd reads back device configuration parameters. At most 255 IDs
// fit the one-byte count.
func GetConfigCmd(ids []uint8) (Command, error) {
	p, err := appendIDs(nil, ids)
	if err != nil {
		return Command{}, err
	}
	return Command{GID: GroupCore, OID: OpCoreGetConfig, Payload: p}, nil
}

// SessionInitCmd starts a session of the given type (0 is FiRa ranging).
func SessionInitCmd(sessionID uint32, sessionType uint8) Command {
	p := binary.LittleEndian.AppendUint32(nil, sessionID)
	return Command{GID: GroupSessionConfig, OID: OpSessionInit, Payload: append(p, sessionType)}
}

func SessionDeinitCmd(sessionID uint32) Command {
	return Command{GID: GroupSessionConfig, OID: OpSessionDeinit, Payload: binary.LittleEndian.AppendUint32(nil, sessionID)}
}

func SessionSetAppConfigCmd(sessionID uint32, tlvs []TLV) (Command, error) {
	p, err := appendTLVs(binary.LittleEndian.AppendUint32(nil, sessionID), tlvs)
	if err != nil {
		return Command{}, err
	}
	return Command{GID: GroupSessionConfig, OID: OpSessionSetAppConfig, Payload: p}, nil
}

func SessionGetAppConfigCmd(sessionID uint32, ids []uint8) (Command, error) {
	p, err := appendIDs(binary.LittleEndian.AppendUint32(nil, sessionID), ids)
	if err != nil {
		return Command{}, err
	}
	return Command{GID: GroupSessionConfig, OID: OpSessionGetAppConfig, Payload: p}, nil
}

func SessionGetCountCmd() Command {
	return Command{GID: GroupSessionConfig, OID: OpSessionGetCount, Payload: []byte{}}
}

func SessionGetStateCmd(sessionID uint32) Command {
	return Command{GID: GroupSessionConfig, OID: OpSessionGetState, Payload: binary.LittleEndian.AppendUint32(nil, sessionID)}
}

func RangeStartCmd(sessionID uint32) Command {
	return Command{GID: GroupRangingSessionControl, OID: OpRangeStart, Payload: binary.LittleEndian.AppendUint32(nil, sessionID)}
}

func RangeStopCmd(sessionID uint32) Command {
	return Command{GID: GroupRangingSessionControl, OID: OpRangeStop, Payload: binary.LittleEndian.AppendUint32(nil, sessionID)}
}

func RangeGetRangingCountCmd(sessionID uint32) Command {
	return Command{GID: GroupRangingSessionControl, OID: OpRangeGetRangingCount, Payload: binary.LittleEndian.AppendUint32(nil, sessionID)}
}

func AndroidGetPowerStatsCmd() Command {
	return Command{GID: GroupVendorAndroid, OID: OpAndroidGetPowerStats, Payload: []byte{}}
}

// AndroidSetCountryCodeCmd sets the regulatory domain from a two-letter
// ISO 3166 code.
func AndroidSetCountryCodeCmd(code string) (Command, error) {
	if len(code) != 2 {
		return Command{}, fmt.Errorf("uci: country code %q must be two characters", code)
	}
	return Command{GID: GroupVendorAndroid, OID: OpAndroidSetCountryCode, Payload: []byte(code)}, nil
}

// RawVendorCmd wraps an opaque payload for any group. The payload may exceed
// MaxPayloadSize; it is fragmented on send.
func RawVendorCmd(gid GroupID, oid uint8, payload []byte) Command {
	return Command{GID: gid & gidMask, OID: oid & oidMask, Payload: payload}
}

func appendTLVs(dst []byte, tlvs []TLV) ([]byte, error) {
	if len(tlvs) > 0xff {
		return nil, fmt.Errorf("uci: %d TLVs exceed the one-byte count", len(tlvs))
	}
	dst = append(dst, uint8(len(tlvs)))
	for _, t := range tlvs {
		if len(t.Value) > 0xff {
			return nil, fmt.Errorf("uci: TLV 0x%02x value is %d bytes", t.ID, len(t.Value))
		}
		dst = append(dst, t.ID, uint8(len(t.Value)))
		dst = append(dst, t.Value...)
	}
	return dst, nil
}

func appendIDs(dst []byte, ids []uint8) ([]byte, error) {
	if len(ids) > 0xff {
		return nil, fmt.Errorf("uci: %d config IDs exceed the one-byte count", len(ids))
	}
	dst = append(dst, uint8(len(ids)))
	return append(dst, ids...), nil
}
