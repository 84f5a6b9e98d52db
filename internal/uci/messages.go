package uci

// Message is a decoded control packet. Decode only ever returns one of the
// Response or Notification variants listed in this file.
type Message interface {
	Opcode() Opcode
}

// Response is a decoded response packet.
type Response interface {
	Message
	isResponse()
}

// Notification is a decoded notification packet.
type Notification interface {
	Message
	isNotification()
}

// TLV is a one-byte-tagged configuration or capability value.
type TLV struct {
	ID    uint8
	Value []byte
}

// ConfigStatus reports the outcome of setting one configuration id.
type ConfigStatus struct {
	ID     uint8
	Status StatusCode
}

// Responses.

type DeviceResetRsp struct {
	Status StatusCode
}

type GetDeviceInfoRsp struct {
	Status         StatusCode
	UciVersion     uint16
	MacVersion     uint16
	PhyVersion     uint16
	UciTestVersion uint16
	VendorSpecInfo []byte
}

type GetCapsInfoRsp struct {
	Status StatusCode
	TLVs   []TLV
}

type SetConfigRsp struct {
	Status StatusCode
	Params []ConfigStatus
}

type GetConfigRsp struct {
	Status StatusCode
	TLVs   []TLV
}

type SessionInitRsp struct {
	Status StatusCode
}

type SessionDeinitRsp struct {
	Status StatusCode
}

type SessionSetAppConfigRsp struct {
	Status StatusCode
	Params []ConfigStatus
}

type SessionGetAppConfigRsp struct {
	Status StatusCode
	TLVs   []TLV
}

type SessionGetCountRsp struct {
	Status       StatusCode
	SessionCount uint8
}

type SessionGetStateRsp struct {
	Status       StatusCode
	SessionState SessionState
}

type SessionUpdateControllerMulticastListRsp struct {
	Status StatusCode
}

type RangeStartRsp struct {
	Status StatusCode
}

type RangeStopRsp struct {
	Status StatusCode
}

type RangeGetRangingCountRsp struct {
	Status StatusCode
	Count  uint32
}

type AndroidGetPowerStatsRsp struct {
	Status         StatusCode
	IdleTimeMs     uint32
	TxTimeMs       uint32
	RxTimeMs       uint32
	TotalWakeCount uint32
}

type AndroidSetCountryCodeRsp struct {
	Status StatusCode
}

// RawVendorRsp carries a response from a vendor-reserved group undecoded.
type RawVendorRsp struct {
	GID     GroupID
	OID     uint8
	Payload []byte
}

func (DeviceResetRsp) Opcode() Opcode   { return Opcode{GroupCore, OpCoreDeviceReset} }
func (GetDeviceInfoRsp) Opcode() Opcode { return Opcode{GroupCore, OpCoreGetDeviceInfo} }
func (GetCapsInfoRsp) Opcode() Opcode   { return Opcode{GroupCore, OpCoreGetCapsInfo} }
func (SetConfigRsp) Opcode() Opcode     { return Opcode{GroupCore, OpCoreSetConfig} }
func (GetConfigRsp) Opcode() Opcode     { return Opcode{GroupCore, OpCoreGetConfig} }
func (SessionInitRsp) Opcode() Opcode   { return Opcode{GroupSessionConfig, OpSessionInit} }
func (SessionDeinitRsp) Opcode() Opcode { return Opcode{GroupSessionConfig, OpSessionDeinit} }
func (SessionSetAppConfigRsp) Opcode() Opcode {
	return Opcode{GroupSessionConfig, OpSessionSetAppConfig}
}
func (SessionGetAppConfigRsp) Opcode() Opcode {
	return Opcode{GroupSessionConfig, OpSessionGetAppConfig}
}
func (SessionGetCountRsp) Opcode() Opcode { return Opcode{GroupSessionConfig, OpSessionGetCount} }
func (SessionGetStateRsp) Opcode() Opcode { return Opcode{GroupSessionConfig, OpSessionGetState} }
func (SessionUpdateControllerMulticastListRsp) Opcode() Opcode {
	return Opcode{GroupSessionConfig, OpSessionUpdateControllerMulticastList}
}
func (RangeStartRsp) Opcode() Opcode { return Opcode{GroupRangingSessionControl, OpRangeStart} }
func (RangeStopRsp) Opcode() Opcode  { return Opcode{GroupRangingSessionControl, OpRangeStop} }
func (RangeGetRangingCountRsp) Opcode() Opcode {
	return Opcode{GroupRangingSessionControl, OpRangeGetRangingCount}
}
func (AndroidGetPowerStatsRsp) Opcode() Opcode {
	return Opcode{GroupVendorAndroid, OpAndroidGetPowerStats}
}
func (AndroidSetCountryCodeRsp) Opcode() Opcode {
	return Opcode{GroupVendorAndroid, OpAndroidSetCountryCode}
}
func (r RawVendorRsp) Opcode() Opcode { return Opcode{r.GID, r.OID} }

// Notifications.

type DeviceStatusNtf struct {
	State DeviceState
}

type GenericErrorNtf struct {
	Status StatusCode
}

type SessionStatusNtf struct {
	SessionID uint32
	State     SessionState
	Reason    ReasonCode
}

// ControleeStatus is one entry of a multicast list update notification.
type ControleeStatus struct {
	MacAddress   uint16
	SubsessionID uint32
	Status       uint8
}

type SessionUpdateControllerMulticastListNtf struct {
	SessionID                  uint32
	RemainingMulticastListSize uint8
	Controlees                 []ControleeStatus
}

// RangeDataHeader is the fixed part of every RANGE_DATA notification.
type RangeDataHeader struct {
	SequenceNumber         uint32
	SessionID              uint32
	RcrIndicator           uint8
	CurrentRangingInterval uint32
	MeasurementType        uint8
	MacAddressIndicator    uint8
}

// TwoWayMeasurement is one two-way ranging result. MacAddress holds a 2-byte
// or 8-byte address depending on the notification variant.
type TwoWayMeasurement struct {
	MacAddress                 uint64
	Status                     StatusCode
	NLoS                       uint8
	Distance                   uint16
	AoaAzimuth                 uint16
	AoaAzimuthFom              uint8
	AoaElevation               uint16
	AoaElevationFom            uint8
	AoaDestinationAzimuth      uint16
	AoaDestinationAzimuthFom   uint8
	AoaDestinationElevation    uint16
	AoaDestinationElevationFom uint8
	SlotIndex                  uint8
}

type ShortMacTwoWayRangeDataNtf struct {
	RangeDataHeader
	Measurements []TwoWayMeasurement
}

type ExtendedMacTwoWayRangeDataNtf struct {
	RangeDataHeader
	Measurements []TwoWayMeasurement
}

// RawVendorNtf carries a notification from a vendor-reserved group undecoded.
type RawVendorNtf struct {
	GID     GroupID
	OID     uint8
	Payload []byte
}

func (DeviceStatusNtf) Opcode() Opcode  { return Opcode{GroupCore, OpCoreDeviceStatus} }
func (GenericErrorNtf) Opcode() Opcode  { return Opcode{GroupCore, OpCoreGenericError} }
func (SessionStatusNtf) Opcode() Opcode { return Opcode{GroupSessionConfig, OpSessionStatus} }
func (SessionUpdateControllerMulticastListNtf) Opcode() Opcode {
	return Opcode{GroupSessionConfig, OpSessionUpdateControllerMulticastList}
}
func (ShortMacTwoWayRangeDataNtf) Opcode() Opcode {
	return Opcode{GroupRangingSessionControl, OpRangeData}
}
func (ExtendedMacTwoWayRangeDataNtf) Opcode() Opcode {
	return Opcode{GroupRangingSessionControl, OpRangeData}
}
func (n RawVendorNtf) Opcode() Opcode { return Opcode{n.GID, n.OID} }

func (DeviceResetRsp) isResponse()                          {}
func (GetDeviceInfoRsp) isResponse()                        {}
func (GetCapsInfoRsp) isResponse()                          {}
func (SetConfigRsp) isResponse()                            {}
func (GetConfigRsp) isResponse()                            {}
func (SessionInitRsp) isResponse()                          {}
func (SessionDeinitRsp) isResponse()                        {}
func (SessionSetAppConfigRsp) isResponse()                  {}
func (SessionGetAppConfigRsp) isResponse()                  {}
func (SessionGetCountRsp) isResponse()                      {}
func (SessionGetStateRsp) isResponse()                      {}
func (SessionUpdateControllerMulticastListRsp) isResponse() {}
func (RangeStartRsp) isResponse()                           {}
func (RangeStopRsp) isResponse()                            {}
func (RangeGetRangingCountRsp) isResponse()                 {}
func (AndroidGetPowerStatsRsp) isResponse()                 {}
func (AndroidSetCountryCodeRsp) isResponse()                {}
func (RawVendorRsp) isResponse()                            {}

func (DeviceStatusNtf) isNotification()                         {}
func (GenericErrorNtf) isNotification()                         {}
func (SessionStatusNtf) isNotification()                        {}
func (SessionUpdateControllerMulticastListNtf) isNotification() {}
func (ShortMacTwoWayRangeDataNtf) isNotification()              {}
func (ExtendedMacTwoWayRangeDataNtf) isNotification()           {}
func (RawVendorNtf) isNotification()                            {}
