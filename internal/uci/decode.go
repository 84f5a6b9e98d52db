package uci

import (
	"encoding/binary"
	"errors"
)

const (
	rangeDataHeaderSize    = 25
	twoWayMeasurementSize  = 31
	shortMacMeasurementRFU = 12
	extMacMeasurementRFU   = 6
)

// errShort is returned by reader methods when the payload runs out.
var errShort = errors.New("payload truncated")

// reader walks a little-endian payload.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = errShort
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// bytes returns a copy so decoded messages never alias the packet buffer.
func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (r *reader) status() StatusCode { return StatusCode(r.u8()) }

func (r *reader) tlvs() []TLV {
	n := int(r.u8())
	out := make([]TLV, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		id := r.u8()
		l := int(r.u8())
		out = append(out, TLV{ID: id, Value: r.bytes(l)})
	}
	return out
}

func (r *reader) configStatuses() []ConfigStatus {
	n := int(r.u8())
	out := make([]ConfigStatus, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, ConfigStatus{ID: r.u8(), Status: r.status()})
	}
	return out
}

// Decode classifies a reassembled packet by message type and opcode and
// decodes its payload. Packets from vendor-reserved groups decode to
// RawVendorRsp or RawVendorNtf whatever their opcode. Any other opcode
// without a known layout fails with ErrUnsupportedMessage; a known opcode
// with a short payload fails with ErrMalformedPayload. Decode does not
// retain p.Payload.
func Decode(p Packet) (Message, error) {
	var (
		msg Message
		err error
	)
	switch p.Type {
	case MessageTypeResponse:
		msg, err = decodeResponse(p)
	case MessageTypeNotification:
		msg, err = decodeNotification(p)
	default:
		err = ErrUnsupportedMessage
	}
	if err != nil {
		return nil, &DecodeError{Type: p.Type, Op: p.Opcode(), Err: err}
	}
	return msg, nil
}

func decodeResponse(p Packet) (Response, error) {
	if p.GID.IsVendorReserved() {
		return RawVendorRsp{GID: p.GID, OID: p.OID, Payload: append([]byte{}, p.Payload...)}, nil
	}

	r := &reader{buf: p.Payload}
	var rsp Response
	switch p.Opcode() {
	case Opcode{GroupCore, OpCoreDeviceReset}:
		rsp = DeviceResetRsp{Status: r.status()}
	case Opcode{GroupCore, OpCoreGetDeviceInfo}:
		v := GetDeviceInfoRsp{
			Status:         r.status(),
			UciVersion:     r.u16(),
			MacVersion:     r.u16(),
			PhyVersion:     r.u16(),
			UciTestVersion: r.u16(),
		}
		v.VendorSpecInfo = r.bytes(int(r.u8()))
		rsp = v
	case Opcode{GroupCore, OpCoreGetCapsInfo}:
		rsp = GetCapsInfoRsp{Status: r.status(), TLVs: r.tlvs()}
	case Opcode{GroupCore, OpCoreSetConfig}:
		rsp = SetConfigRsp{Status: r.status(), Params: r.configStatuses()}
	case Opcode{GroupCore, OpCoreGetConfig}:
		rsp = GetConfigRsp{Status: r.status(), TLVs: r.tlvs()}

	case Opcode{GroupSessionConfig, OpSessionInit}:
		rsp = SessionInitRsp{Status: r.status()}
	case Opcode{GroupSessionConfig, OpSessionDeinit}:
		rsp = SessionDeinitRsp{Status: r.status()}
	case Opcode{GroupSessionConfig, OpSessionSetAppConfig}:
		rsp = SessionSetAppConfigRsp{Status: r.status(), Params: r.configStatuses()}
	case Opcode{GroupSessionConfig, OpSessionGetAppConfig}:
		rsp = SessionGetAppConfigRsp{Status: r.status(), TLVs: r.tlvs()}
	case Opcode{GroupSessionConfig, OpSessionGetCount}:
		rsp = SessionGetCountRsp{Status: r.status(), SessionCount: r.u8()}
	case Opcode{GroupSessionConfig, OpSessionGetState}:
		rsp = SessionGetStateRsp{Status: r.status(), SessionState: SessionState(r.u8())}
	case Opcode{GroupSessionConfig, OpSessionUpdateControllerMulticastList}:
		rsp = SessionUpdateControllerMulticastListRsp{Status: r.status()}

	case Opcode{GroupRangingSessionControl, OpRangeStart}:
		rsp = RangeStartRsp{Status: r.status()}
	case Opcode{GroupRangingSessionControl, OpRangeStop}:
		rsp = RangeStopRsp{Status: r.status()}
	case Opcode{GroupRangingSessionControl, OpRangeGetRangingCount}:
		rsp = RangeGetRangingCountRsp{Status: r.status(), Count: r.u32()}

	case Opcode{GroupVendorAndroid, OpAndroidGetPowerStats}:
		rsp = AndroidGetPowerStatsRsp{
			Status:         r.status(),
			IdleTimeMs:     r.u32(),
			TxTimeMs:       r.u32(),
			RxTimeMs:       r.u32(),
			TotalWakeCount: r.u32(),
		}
	case Opcode{GroupVendorAndroid, OpAndroidSetCountryCode}:
		rsp = AndroidSetCountryCodeRsp{Status: r.status()}

	default:
		return nil, ErrUnsupportedMessage
	}
	if r.err != nil {
		return nil, ErrMalformedPayload
	}
	return rsp, nil
}

func decodeNotification(p Packet) (Notification, error) {
	if p.GID.IsVendorReserved() {
		return RawVendorNtf{GID: p.GID, OID: p.OID, Payload: append([]byte{}, p.Payload...)}, nil
	}

	r := &reader{buf: p.Payload}
	var ntf Notification
	switch p.Opcode() {
	case Opcode{GroupCore, OpCoreDeviceStatus}:
		ntf = DeviceStatusNtf{State: DeviceState(r.u8())}
	case Opcode{GroupCore, OpCoreGenericError}:
		ntf = GenericErrorNtf{Status: r.status()}

	case Opcode{GroupSessionConfig, OpSessionStatus}:
		ntf = SessionStatusNtf{
			SessionID: r.u32(),
			State:     SessionState(r.u8()),
			Reason:    ReasonCode(r.u8()),
		}
	case Opcode{GroupSessionConfig, OpSessionUpdateControllerMulticastList}:
		v := SessionUpdateControllerMulticastListNtf{
			SessionID:                  r.u32(),
			RemainingMulticastListSize: r.u8(),
		}
		n := int(r.u8())
		v.Controlees = make([]ControleeStatus, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v.Controlees = append(v.Controlees, ControleeStatus{
				MacAddress:   r.u16(),
				SubsessionID: r.u32(),
				Status:       r.u8(),
			})
		}
		ntf = v

	case Opcode{GroupRangingSessionControl, OpRangeData}:
		return decodeRangeData(r)

	default:
		return nil, ErrUnsupportedMessage
	}
	if r.err != nil {
		return nil, ErrMalformedPayload
	}
	return ntf, nil
}

func decodeRangeData(r *reader) (Notification, error) {
	if len(r.buf) < rangeDataHeaderSize {
		return nil, ErrMalformedPayload
	}
	h := RangeDataHeader{
		SequenceNumber:         r.u32(),
		SessionID:              r.u32(),
		RcrIndicator:           r.u8(),
		CurrentRangingInterval: r.u32(),
		MeasurementType:        r.u8(),
	}
	r.u8() // rfu
	h.MacAddressIndicator = r.u8()
	r.take(8) // reserved
	count := int(r.u8())

	if h.MeasurementType != MeasurementTwoWay {
		return nil, ErrUnsupportedMessage
	}
	var macLen, rfu int
	switch h.MacAddressIndicator {
	case ShortMacAddress:
		macLen, rfu = 2, shortMacMeasurementRFU
	case ExtendedMacAddress:
		macLen, rfu = 8, extMacMeasurementRFU
	default:
		return nil, ErrUnsupportedMessage
	}
	if len(r.buf)-r.off < count*twoWayMeasurementSize {
		return nil, ErrMalformedPayload
	}

	ms := make([]TwoWayMeasurement, 0, count)
	for i := 0; i < count; i++ {
		var m TwoWayMeasurement
		if macLen == 2 {
			m.MacAddress = uint64(r.u16())
		} else {
			m.MacAddress = r.u64()
		}
		m.Status = r.status()
		m.NLoS = r.u8()
		m.Distance = r.u16()
		m.AoaAzimuth = r.u16()
		m.AoaAzimuthFom = r.u8()
		m.AoaElevation = r.u16()
		m.AoaElevationFom = r.u8()
		m.AoaDestinationAzimuth = r.u16()
		m.AoaDestinationAzimuthFom = r.u8()
		m.AoaDestinationElevation = r.u16()
		m.AoaDestinationElevationFom = r.u8()
		m.SlotIndex = r.u8()
		r.take(rfu)
		ms = append(ms, m)
	}
	if r.err != nil {
		return nil, ErrMalformedPayload
	}

	if h.MacAddressIndicator == ShortMacAddress {
		return ShortMacTwoWayRangeDataNtf{RangeDataHeader: h, Measurements: ms}, nil
	}
	return ExtendedMacTwoWayRangeDataNtf{RangeDataHeader: h, Measurements: ms}, nil
}
