package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/hal/simchip"
	"github.com/banshee-data/uwb.hal/internal/timeutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

func startDaemon(t *testing.T, sim *simchip.Chip) (*hal.Adapter, <-chan hal.Event) {
	t.Helper()
	events := dispatch.NewQueue[hal.Event]()
	adapter := hal.NewAdapter(hal.StaticService(sim), events, hal.Config{})
	seen := make(chan hal.Event, 64)
	d := &daemon{
		adapter: adapter,
		events:  events,
		backoff: 10 * time.Millisecond,
		handled: func(ev hal.Event) { seen <- ev },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
		adapter.Close(context.Background())
	})
	return adapter, seen
}

// waitFor returns the first event matching match.
func waitFor(t *testing.T, seen <-chan hal.Event, match func(hal.Event) bool) hal.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-seen:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func isHardware(kind hal.EventKind) func(hal.Event) bool {
	return func(ev hal.Event) bool {
		hw, ok := ev.(hal.HardwareEvent)
		return ok && hw.Event == kind
	}
}

func TestDaemon_BringUp(t *testing.T) {
	adapter, seen := startDaemon(t, simchip.New())

	waitFor(t, seen, isHardware(hal.EventOpenCplt))
	waitFor(t, seen, isHardware(hal.EventPostInitCplt))
	assert.Eventually(t, func() bool {
		return adapter.State() == hal.StateCoreInitialized
	}, time.Second, 5*time.Millisecond)
}

func TestDaemon_ReopensAfterLinkLoss(t *testing.T) {
	sim := simchip.New()
	adapter, seen := startDaemon(t, sim)
	waitFor(t, seen, isHardware(hal.EventPostInitCplt))

	sim.Kill()
	waitFor(t, seen, hal.IsLinkLost)
	waitFor(t, seen, isHardware(hal.EventOpenCplt))
	waitFor(t, seen, isHardware(hal.EventPostInitCplt))

	ctx := context.Background()
	require.NoError(t, adapter.Send(ctx, uci.GetDeviceInfoCmd()))
	ev := waitFor(t, seen, func(ev hal.Event) bool {
		_, ok := ev.(hal.ResponseEvent)
		return ok
	})
	assert.IsType(t, uci.GetDeviceInfoRsp{}, ev.(hal.ResponseEvent).Msg)
}

func TestDaemon_StopsWhileWaitingToReopen(t *testing.T) {
	events := dispatch.NewQueue[hal.Event]()
	attempts := 0
	unavailable := hal.ServiceFunc(func(context.Context) (hal.Chip, error) {
		attempts++
		return nil, errors.New("no chip")
	})
	d := &daemon{
		adapter: hal.NewAdapter(unavailable, events, hal.Config{}),
		events:  events,
		backoff: time.Hour,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, d.run(ctx))
	assert.Equal(t, 1, attempts)
}

func TestDaemon_RetriesOnBackoff(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sim := simchip.New()
	var attempts atomic.Int32
	flaky := hal.ServiceFunc(func(context.Context) (hal.Chip, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("no chip yet")
		}
		return sim, nil
	})
	events := dispatch.NewQueue[hal.Event]()
	adapter := hal.NewAdapter(flaky, events, hal.Config{})
	seen := make(chan hal.Event, 64)
	d := &daemon{
		adapter: adapter,
		events:  events,
		backoff: 5 * time.Second,
		clock:   clock,
		handled: func(ev hal.Event) { seen <- ev },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	defer func() {
		cancel()
		<-done
		adapter.Close(context.Background())
	}()

	for want := int32(1); want <= 2; want++ {
		require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
		assert.Equal(t, want, attempts.Load())
		clock.Advance(5 * time.Second)
	}
	waitFor(t, seen, isHardware(hal.EventPostInitCplt))
	assert.Equal(t, int32(3), attempts.Load())
}
