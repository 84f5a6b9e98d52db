package ucilog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/uwb.hal/internal/uci"
)

type recordingSink struct {
	entries []Entry
	closes  int
	err     error
}

func (s *recordingSink) Record(e Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.closes++
	return s.err
}

var (
	appConfigCmd, _ = uci.SessionSetAppConfigCmd(1, []uci.TLV{{ID: 0x06, Value: []byte{0xaa, 0xbb}}})
	resetRsp        = uci.Packet{Type: uci.MessageTypeResponse, GID: uci.GroupCore, OID: uci.OpCoreDeviceReset, Payload: []byte{0x00}}
	rangeDataNtf    = uci.Packet{Type: uci.MessageTypeNotification, GID: uci.GroupRangingSessionControl, OID: uci.OpRangeData, Payload: make([]byte, 25)}
	statusNtf       = uci.Packet{Type: uci.MessageTypeNotification, GID: uci.GroupCore, OID: uci.OpCoreDeviceStatus, Payload: []byte{0x01}}
	vendorRsp       = uci.Packet{Type: uci.MessageTypeResponse, GID: uci.GroupVendorReserved9, OID: 0x01, Payload: []byte{0x01}}
)

func logAll(l *Logger) {
	l.LogCommand(uci.DeviceResetCmd(0))
	l.LogCommand(appConfigCmd)
	l.LogResponse(resetRsp)
	l.LogResponse(vendorRsp)
	l.LogNotification(statusNtf)
	l.LogNotification(rangeDataNtf)
}

func TestLogger_Modes(t *testing.T) {
	tests := []struct {
		mode Mode
		want []uci.Opcode
	}{
		{ModeDisabled, nil},
		{ModeFiltered, []uci.Opcode{
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceReset},
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceReset},
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceStatus},
		}},
		{ModeEnabled, []uci.Opcode{
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceReset},
			{GID: uci.GroupSessionConfig, OID: uci.OpSessionSetAppConfig},
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceReset},
			{GID: uci.GroupVendorReserved9, OID: 0x01},
			{GID: uci.GroupCore, OID: uci.OpCoreDeviceStatus},
			{GID: uci.GroupRangingSessionControl, OID: uci.OpRangeData},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			sink := &recordingSink{}
			l := New(tt.mode, sink)
			logAll(l)

			var got []uci.Opcode
			for _, e := range sink.entries {
				got = append(got, e.Packet().Opcode())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_EntryFields(t *testing.T) {
	sink := &recordingSink{}
	l := New(ModeEnabled, sink)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return now }
	id := uuid.New()
	l.SetHandle(id)

	l.LogCommand(uci.SessionInitCmd(5, 0))
	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, now, e.Time)
	assert.Equal(t, id, e.Handle)
	assert.Equal(t, uci.MessageTypeCommand, e.Type)
	assert.Equal(t, uci.GroupSessionConfig, e.GID)
	assert.Equal(t, uci.OpSessionInit, e.OID)
	assert.Equal(t, []byte{5, 0, 0, 0, 0}, e.Payload)
}

func TestLogger_SinkErrorsAreSwallowed(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	failing := &recordingSink{err: errors.New("disk full")}
	ok := &recordingSink{}
	l := New(ModeEnabled, failing, ok)

	assert.NotPanics(t, func() {
		l.LogResponse(resetRsp)
		l.Close()
	})
	assert.Len(t, ok.entries, 1, "healthy sink still receives entries")
	assert.True(t, strings.Contains(ops.String(), "disk full"), "ops log = %q", ops.String())
}

func TestLogger_CloseClosesSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	l := New(ModeFiltered, a, b)
	l.Close()
	l.Close()
	assert.Equal(t, 2, a.closes)
	assert.Equal(t, 2, b.closes)
}

func TestLogger_Nil(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		logAll(l)
		l.SetHandle(uuid.New())
		l.Close()
	})
	assert.Equal(t, ModeDisabled, l.Mode())
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeDisabled, ModeFiltered, ModeEnabled} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("verbose")
	assert.Error(t, err)
}

func TestAllowed_VendorAndroidIsNotFiltered(t *testing.T) {
	p := uci.Packet{Type: uci.MessageTypeResponse, GID: uci.GroupVendorAndroid, OID: uci.OpAndroidSetCountryCode, Payload: []byte{0}}
	assert.True(t, Allowed(ModeFiltered, p))
}

func TestAllowed_AppConfigResponseIsNotFiltered(t *testing.T) {
	p := uci.Packet{Type: uci.MessageTypeResponse, GID: uci.GroupSessionConfig, OID: uci.OpSessionSetAppConfig, Payload: []byte{0, 0}}
	assert.True(t, Allowed(ModeFiltered, p))
}
