package uart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

type recorder struct {
	frames chan []byte
	events chan hal.EventKind
}

func newRecorder() *recorder {
	return &recorder{frames: make(chan []byte, 16), events: make(chan hal.EventKind, 16)}
}

func (r *recorder) OnHalEvent(kind hal.EventKind, _ hal.Status) error {
	r.events <- kind
	return nil
}

func (r *recorder) OnUciMessage(fragment []byte) error {
	r.frames <- fragment
	return nil
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
		panic("unreachable")
	}
}

func TestChip_SplitsStreamIntoFragments(t *testing.T) {
	port := NewTestablePort()
	chip := NewChip(port)
	rec := newRecorder()
	require.NoError(t, chip.Open(context.Background(), rec))
	defer chip.Close(context.Background())
	assert.Equal(t, hal.EventOpenCplt, recv(t, rec.events))

	// Two fragments, delivered in pieces that do not line up with them.
	stream := []byte{0x59, 0x01, 0x00, 0x02, 0xaa, 0xbb, 0x49, 0x01, 0x00, 0x00}
	port.AddReadData(stream[:3])
	port.AddReadData(stream[3:7])
	port.AddReadData(stream[7:])

	assert.Equal(t, stream[:6], recv(t, rec.frames))
	assert.Equal(t, stream[6:], recv(t, rec.frames))
}

func TestChip_ReadFailureIsDeath(t *testing.T) {
	port := NewTestablePort()
	chip := NewChip(port)
	require.NoError(t, chip.Open(context.Background(), newRecorder()))
	defer chip.Close(context.Background())

	died := make(chan struct{}, 2)
	unlinkA, err := chip.LinkToDeath(func() { died <- struct{}{} })
	require.NoError(t, err)
	defer unlinkA()
	unlinkB, err := chip.LinkToDeath(func() { t.Error("unlinked callback fired") })
	require.NoError(t, err)
	unlinkB()

	port.Fail(io.ErrUnexpectedEOF)
	recv(t, died)

	_, err = chip.LinkToDeath(func() {})
	assert.ErrorIs(t, err, ErrLinkDown)
	_, err = chip.SendUciMessage(context.Background(), []byte{0x20, 0x02, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrLinkDown)
}

func TestChip_CloseIsNotDeath(t *testing.T) {
	port := NewTestablePort()
	chip := NewChip(port)
	rec := newRecorder()
	require.NoError(t, chip.Open(context.Background(), rec))
	_, err := chip.LinkToDeath(func() { t.Error("death fired on Close") })
	require.NoError(t, err)

	require.NoError(t, chip.Close(context.Background()))
	assert.True(t, port.Closed)
	assert.Equal(t, hal.EventOpenCplt, recv(t, rec.events))
	assert.Equal(t, hal.EventCloseCplt, recv(t, rec.events))

	require.NoError(t, chip.Close(context.Background()), "second Close is a no-op")
	assert.ErrorIs(t, chip.Open(context.Background(), rec), ErrClosed)
}

func TestChip_NotOpen(t *testing.T) {
	chip := NewChip(NewTestablePort())
	_, err := chip.SendUciMessage(context.Background(), []byte{0x20, 0x02, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, chip.CoreInit(context.Background()), ErrNotOpen)
	assert.ErrorIs(t, chip.SessionInit(context.Background(), 1), ErrNotOpen)
}

func TestChip_CoreInitWritesSequence(t *testing.T) {
	port := NewTestablePort()
	chip := NewChip(port)
	chip.InitSequence = [][]byte{{0x2e, 0x00, 0x00, 0x01, 0x01}, {0x20, 0x00, 0x00, 0x01, 0x00}}
	rec := newRecorder()
	require.NoError(t, chip.Open(context.Background(), rec))
	defer chip.Close(context.Background())

	require.NoError(t, chip.CoreInit(context.Background()))
	assert.Equal(t, []byte{0x2e, 0x00, 0x00, 0x01, 0x01, 0x20, 0x00, 0x00, 0x01, 0x00}, port.Written())
	assert.Equal(t, hal.EventOpenCplt, recv(t, rec.events))
	assert.Equal(t, hal.EventPostInitCplt, recv(t, rec.events))

	port.ShortWrite = 1
	assert.Error(t, chip.CoreInit(context.Background()))
}

// The adapter, driven over a UART, sees the same events as with any other
// chip.
func TestChip_WithAdapter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port := NewTestablePort()
	var opened string
	svc := Service{
		Path: "/dev/ttyUWB0",
		Open: func(path string, opts PortOptions) (Port, error) {
			opened = path
			return port, nil
		},
	}
	q := dispatch.NewQueue[hal.Event]()
	a := hal.NewAdapter(svc, q, hal.Config{})
	require.NoError(t, a.Open(ctx))
	assert.Equal(t, "/dev/ttyUWB0", opened)

	ev, err := q.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, hal.HardwareEvent{Event: hal.EventOpenCplt, Status: hal.StatusOK}, ev)

	require.NoError(t, a.Send(ctx, uci.GetDeviceInfoCmd()))
	assert.Equal(t, []byte{0x20, 0x02, 0x00, 0x00}, port.Written())

	port.AddReadData([]byte{0x40, 0x00, 0x00, 0x01, 0x00})
	ev, err = q.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, hal.ResponseEvent{Msg: uci.DeviceResetRsp{Status: uci.StatusOk}}, ev)

	port.Fail(errors.New("cable pulled"))
	ev, err = q.Recv(ctx)
	require.NoError(t, err)
	assert.True(t, hal.IsLinkLost(ev), "got %#v", ev)

	err = a.Send(ctx, uci.GetDeviceInfoCmd())
	assert.ErrorIs(t, err, hal.ErrTransport)
	require.NoError(t, a.Close(ctx))
}

func TestChip_ShortWriteThroughAdapter(t *testing.T) {
	port := NewTestablePort()
	port.ShortWrite = 2
	a := hal.NewAdapter(Service{Open: func(string, PortOptions) (Port, error) { return port, nil }},
		dispatch.NewQueue[hal.Event](), hal.Config{})
	require.NoError(t, a.Open(context.Background()))
	defer a.Close(context.Background())

	err := a.Send(context.Background(), uci.RawVendorCmd(uci.GroupVendorReserved9, 1, bytes.Repeat([]byte{1}, 10)))
	assert.ErrorIs(t, err, hal.ErrTransport)
}

func TestService_OpenError(t *testing.T) {
	svc := Service{Path: "/dev/none", Open: func(string, PortOptions) (Port, error) {
		return nil, errors.New("no such device")
	}}
	a := hal.NewAdapter(svc, dispatch.NewQueue[hal.Event](), hal.Config{})
	assert.ErrorIs(t, a.Open(context.Background()), hal.ErrServiceUnavailable)
}
