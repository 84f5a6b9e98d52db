package grpcchip

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/hal/simchip"
	"github.com/banshee-data/uwb.hal/internal/testutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

func serve(t *testing.T, chip hal.Chip) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(chip).Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

var (
	openCplt    = hal.HardwareEvent{Event: hal.EventOpenCplt, Status: hal.StatusOK}
	ready       = hal.NotificationEvent{Msg: uci.DeviceStatusNtf{State: uci.DeviceStateReady}}
	postInit    = hal.HardwareEvent{Event: hal.EventPostInitCplt, Status: hal.StatusOK}
	resetOkResp = hal.ResponseEvent{Msg: uci.DeviceResetRsp{Status: uci.StatusOk}}
)

func TestChip_WithAdapter(t *testing.T) {
	ctx := context.Background()
	sim := simchip.New()
	sim.MaxPayloadSize = 8
	conn := serve(t, sim)

	q := dispatch.NewQueue[hal.Event]()
	a := hal.NewAdapter(hal.StaticService(New(conn)), q, hal.Config{MaxPayloadSize: 8})
	require.NoError(t, a.Open(ctx))
	defer a.Close(ctx)
	assert.Equal(t, openCplt, testutil.Next(t, q))
	assert.Equal(t, ready, testutil.Next(t, q))

	require.NoError(t, a.CoreInit(ctx))
	assert.Equal(t, postInit, testutil.Next(t, q))

	require.NoError(t, a.Send(ctx, uci.DeviceResetCmd(0)))
	assert.Equal(t, resetOkResp, testutil.Next(t, q))
	assert.Equal(t, ready, testutil.Next(t, q))

	payload := bytes.Repeat([]byte{0xc3}, 30)
	require.NoError(t, a.Send(ctx, uci.RawVendorCmd(uci.GroupVendorReservedB, 0x02, payload)))
	got, ok := testutil.Next(t, q).(hal.ResponseEvent)
	require.True(t, ok)
	assert.Equal(t, uci.RawVendorRsp{GID: uci.GroupVendorReservedB, OID: 0x02, Payload: payload}, got.Msg)
}

func TestChip_SessionInitStatus(t *testing.T) {
	ctx := context.Background()
	conn := serve(t, simchip.New())
	q := dispatch.NewQueue[hal.Event]()
	a := hal.NewAdapter(hal.StaticService(New(conn)), q, hal.Config{})
	require.NoError(t, a.Open(ctx))
	defer a.Close(ctx)
	require.NoError(t, a.CoreInit(ctx))

	err := a.SessionInit(ctx, 7)
	var rejected *hal.HardwareRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, hal.StatusFailed, rejected.Status)

	require.NoError(t, a.Send(ctx, uci.SessionInitCmd(7, 0)))
	require.NoError(t, a.SessionInit(ctx, 7))
	assert.Equal(t, []int32{7}, a.Sessions())
}

func TestChip_DeathAndRecovery(t *testing.T) {
	ctx := context.Background()
	sim := simchip.New()
	conn := serve(t, sim)
	q := dispatch.NewQueue[hal.Event]()
	a := hal.NewAdapter(hal.StaticService(New(conn)), q, hal.Config{})
	require.NoError(t, a.Open(ctx))
	defer a.Close(ctx)
	assert.Equal(t, openCplt, testutil.Next(t, q))
	assert.Equal(t, ready, testutil.Next(t, q))

	sim.Kill()
	assert.True(t, hal.IsLinkLost(testutil.Next(t, q)))
	assert.ErrorIs(t, a.Send(ctx, uci.GetDeviceInfoCmd()), hal.ErrTransport)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Open(ctx))
	assert.Equal(t, openCplt, testutil.Next(t, q))
	assert.Equal(t, ready, testutil.Next(t, q))

	require.NoError(t, a.Send(ctx, uci.DeviceResetCmd(0)))
	assert.Equal(t, resetOkResp, testutil.Next(t, q))
}

type recorder struct {
	events chan hal.EventKind
}

func (r *recorder) OnHalEvent(kind hal.EventKind, _ hal.Status) error {
	r.events <- kind
	return nil
}

func (r *recorder) OnUciMessage([]byte) error { return nil }

func TestChip_CloseIsNotDeath(t *testing.T) {
	ctx := context.Background()
	chip := New(serve(t, simchip.New()))
	rec := &recorder{events: make(chan hal.EventKind, 8)}
	require.NoError(t, chip.Open(ctx, rec))
	_, err := chip.LinkToDeath(func() { t.Error("death fired on Close") })
	require.NoError(t, err)

	require.NoError(t, chip.Close(ctx))
	require.Len(t, rec.events, 2, "CloseCplt arrives before Close returns")
	assert.Equal(t, hal.EventOpenCplt, <-rec.events)
	assert.Equal(t, hal.EventCloseCplt, <-rec.events)

	require.NoError(t, chip.Close(ctx), "second Close is a no-op")
	_, err = chip.SendUciMessage(ctx, []byte{0x20, 0x02, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, chip.CoreInit(ctx), ErrNotOpen)
}

// A client that still thinks it holds the chip learns from the server why a
// write was refused.
func TestChip_SendRefusedByServer(t *testing.T) {
	ctx := context.Background()
	sim := simchip.New()
	conn := serve(t, sim)
	frag := []byte{0x20, 0x02, 0x00, 0x00}

	err := conn.Invoke(ctx, methodSend, wrapperspb.Bytes(frag), new(wrapperspb.UInt32Value))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	stale := New(conn)
	stale.done = make(chan struct{})
	_, err = stale.SendUciMessage(ctx, frag)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.NotErrorIs(t, err, ErrLinkDown)

	owner := New(conn)
	require.NoError(t, owner.Open(ctx, &recorder{events: make(chan hal.EventKind, 8)}))
	defer owner.Close(ctx)
	n, err := stale.SendUciMessage(ctx, frag)
	require.NoError(t, err)
	assert.Equal(t, len(frag), n)

	sim.Kill()
	err = conn.Invoke(ctx, methodSend, wrapperspb.Bytes(frag), new(wrapperspb.UInt32Value))
	assert.Equal(t, codes.Unavailable, status.Code(err))
	_, err = stale.SendUciMessage(ctx, frag)
	assert.ErrorIs(t, err, ErrLinkDown)
	assert.NotErrorIs(t, err, ErrNotOpen)
	_, err = owner.SendUciMessage(ctx, frag)
	assert.ErrorIs(t, err, ErrLinkDown)
}

func TestServer_OneClientAtATime(t *testing.T) {
	ctx := context.Background()
	conn := serve(t, simchip.New())
	first := New(conn)
	require.NoError(t, first.Open(ctx, &recorder{events: make(chan hal.EventKind, 8)}))
	defer first.Close(ctx)

	second := New(conn)
	assert.Error(t, second.Open(ctx, &recorder{events: make(chan hal.EventKind, 8)}))
}

func TestServer_ClientGoneClosesChip(t *testing.T) {
	sim := simchip.New()
	conn := serve(t, sim)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A client that opens and then disappears without Close.
	chip := New(conn)
	require.NoError(t, chip.Open(ctx, &recorder{events: make(chan hal.EventKind, 8)}))
	chip.mu.Lock()
	chip.closing = true
	chip.cancel()
	chip.mu.Unlock()

	require.Eventually(t, func() bool {
		return sim.CoreInit(ctx) == simchip.ErrNotOpen
	}, 2*time.Second, 10*time.Millisecond)

	other := New(conn)
	require.NoError(t, other.Open(ctx, &recorder{events: make(chan hal.EventKind, 8)}))
	require.NoError(t, other.Close(ctx))
}
