package uci

import "fmt"

// Core group opcodes.
const (
	OpCoreDeviceReset   uint8 = 0x00
	OpCoreDeviceStatus  uint8 = 0x01
	OpCoreGetDeviceInfo uint8 = 0x02
	OpCoreGetCapsInfo   uint8 = 0x03
	OpCoreSetConfig     uint8 = 0x04
	OpCoreGetConfig     uint8 = 0x05
	OpCoreDeviceSuspend uint8 = 0x06
	OpCoreGenericError  uint8 = 0x07
)

// Session config group opcodes.
const (
	OpSessionInit                          uint8 = 0x00
	OpSessionDeinit                        uint8 = 0x01
	OpSessionStatus                        uint8 = 0x02
	OpSessionSetAppConfig                  uint8 = 0x03
	OpSessionGetAppConfig                  uint8 = 0x04
	OpSessionGetCount                      uint8 = 0x05
	OpSessionGetState                      uint8 = 0x06
	OpSessionUpdateControllerMulticastList uint8 = 0x07
)

// Ranging session control group opcodes. RANGE_START and RANGE_DATA share
// OID 0; the message type tells them apart.
const (
	OpRangeStart           uint8 = 0x00
	OpRangeData            uint8 = 0x00
	OpRangeStop            uint8 = 0x01
	OpRangeIntervalUpdate  uint8 = 0x02
	OpRangeGetRangingCount uint8 = 0x03
)

// Android vendor group opcodes.
const (
	OpAndroidGetPowerStats  uint8 = 0x00
	OpAndroidSetCountryCode uint8 = 0x01
)

// StatusCode is the status byte carried by responses and some notifications.
type StatusCode uint8

const (
	StatusOk                      StatusCode = 0x00
	StatusRejected                StatusCode = 0x01
	StatusFailed                  StatusCode = 0x02
	StatusSyntaxError             StatusCode = 0x03
	StatusInvalidParam            StatusCode = 0x04
	StatusInvalidRange            StatusCode = 0x05
	StatusInvalidMessageSize      StatusCode = 0x06
	StatusUnknownGID              StatusCode = 0x07
	StatusUnknownOID              StatusCode = 0x08
	StatusReadOnly                StatusCode = 0x09
	StatusCommandRetry            StatusCode = 0x0a
	StatusSessionNotExist         StatusCode = 0x11
	StatusSessionDuplicate        StatusCode = 0x12
	StatusSessionActive           StatusCode = 0x13
	StatusMaxSessionsExceeded     StatusCode = 0x14
	StatusSessionNotConfigured    StatusCode = 0x15
	StatusActiveSessionsOngoing   StatusCode = 0x16
	StatusMulticastListFull       StatusCode = 0x17
	StatusAddressNotFound         StatusCode = 0x18
	StatusAddressAlreadyPresent   StatusCode = 0x19
	StatusRangingTxFailed         StatusCode = 0x20
	StatusRangingRxTimeout        StatusCode = 0x21
	StatusRangingRxPhyDecFailed   StatusCode = 0x22
	StatusRangingRxPhyToaFailed   StatusCode = 0x23
	StatusRangingRxPhyStsFailed   StatusCode = 0x24
	StatusRangingRxMacDecFailed   StatusCode = 0x25
	StatusRangingRxMacIeDecFailed StatusCode = 0x26
	StatusRangingRxMacIeMissing   StatusCode = 0x27
)

var statusNames = map[StatusCode]string{
	StatusOk:                      "ok",
	StatusRejected:                "rejected",
	StatusFailed:                  "failed",
	StatusSyntaxError:             "syntax_error",
	StatusInvalidParam:            "invalid_param",
	StatusInvalidRange:            "invalid_range",
	StatusInvalidMessageSize:      "invalid_message_size",
	StatusUnknownGID:              "unknown_gid",
	StatusUnknownOID:              "unknown_oid",
	StatusReadOnly:                "read_only",
	StatusCommandRetry:            "command_retry",
	StatusSessionNotExist:         "session_not_exist",
	StatusSessionDuplicate:        "session_duplicate",
	StatusSessionActive:           "session_active",
	StatusMaxSessionsExceeded:     "max_sessions_exceeded",
	StatusSessionNotConfigured:    "session_not_configured",
	StatusActiveSessionsOngoing:   "active_sessions_ongoing",
	StatusMulticastListFull:       "multicast_list_full",
	StatusAddressNotFound:         "address_not_found",
	StatusAddressAlreadyPresent:   "address_already_present",
	StatusRangingTxFailed:         "ranging_tx_failed",
	StatusRangingRxTimeout:        "ranging_rx_timeout",
	StatusRangingRxPhyDecFailed:   "ranging_rx_phy_dec_failed",
	StatusRangingRxPhyToaFailed:   "ranging_rx_phy_toa_failed",
	StatusRangingRxPhyStsFailed:   "ranging_rx_phy_sts_failed",
	StatusRangingRxMacDecFailed:   "ranging_rx_mac_dec_failed",
	StatusRangingRxMacIeDecFailed: "ranging_rx_mac_ie_dec_failed",
	StatusRangingRxMacIeMissing:   "ranging_rx_mac_ie_missing",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(0x%02x)", uint8(s))
}

// DeviceState is reported by CORE_DEVICE_STATUS_NTF.
type DeviceState uint8

const (
	DeviceStateReady  DeviceState = 0x01
	DeviceStateActive DeviceState = 0x02
	DeviceStateError  DeviceState = 0xff
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateReady:
		return "ready"
	case DeviceStateActive:
		return "active"
	case DeviceStateError:
		return "error"
	}
	return fmt.Sprintf("device_state(0x%02x)", uint8(s))
}

// SessionState is reported by session status and get-state messages.
type SessionState uint8

const (
	SessionStateInit   SessionState = 0x00
	SessionStateDeinit SessionState = 0x01
	SessionStateActive SessionState = 0x02
	SessionStateIdle   SessionState = 0x03
)

func (s SessionState) String() string {
	switch s {
	case SessionStateInit:
		return "init"
	case SessionStateDeinit:
		return "deinit"
	case SessionStateActive:
		return "active"
	case SessionStateIdle:
		return "idle"
	}
	return fmt.Sprintf("session_state(0x%02x)", uint8(s))
}

// ReasonCode explains a session state change.
type ReasonCode uint8

const (
	ReasonStateChangeWithSessionManagementCommands ReasonCode = 0x00
	ReasonMaxRangingRoundRetryCountReached         ReasonCode = 0x01
	ReasonMaxNumberOfMeasurementsReached           ReasonCode = 0x02
)

// MAC address indicator values in range data notifications.
const (
	ShortMacAddress    uint8 = 0x00
	ExtendedMacAddress uint8 = 0x01
)

// Ranging measurement types in range data notifications.
const (
	MeasurementOneWay uint8 = 0x00
	MeasurementTwoWay uint8 = 0x01
)
