package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/uwb.hal/internal/dispatch"
	"github.com/banshee-data/uwb.hal/internal/hal"
	"github.com/banshee-data/uwb.hal/internal/timeutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

// daemon is the single consumer of the adapter's event queue. It brings the
// chip up, reports what the chip says and reopens it when the link is lost.
type daemon struct {
	adapter *hal.Adapter
	events  *dispatch.Queue[hal.Event]
	backoff time.Duration
	clock   timeutil.Clock

	// handled is called after each event is reported; tests use it to
	// observe progress.
	handled func(hal.Event)
}

// bringUp opens the chip and runs core init. A failed core init leaves the
// adapter closed.
func (d *daemon) bringUp(ctx context.Context) error {
	if err := d.adapter.Open(ctx); err != nil {
		return err
	}
	if err := d.adapter.CoreInit(ctx); err != nil {
		d.adapter.Close(ctx)
		return err
	}
	return nil
}

// reopen closes the lost session and retries bringUp every backoff until
// it succeeds or ctx is done.
func (d *daemon) reopen(ctx context.Context) error {
	if err := d.adapter.Close(ctx); err != nil {
		log.Printf("close after link loss: %v", err)
	}
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeutil.Or(d.clock).After(d.backoff):
		}
		if err := d.bringUp(ctx); err != nil {
			log.Printf("reopen attempt %d failed: %v", attempt, err)
			continue
		}
		log.Printf("chip back after %d attempt(s)", attempt)
		return nil
	}
}

// run starts the chip and consumes events until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	if err := d.bringUp(ctx); err != nil {
		log.Printf("chip bring-up failed: %v", err)
		if err := d.reopen(ctx); err != nil {
			return nil
		}
	}

	for {
		ev, err := d.events.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive event: %w", err)
		}
		report(ev)
		if d.handled != nil {
			d.handled(ev)
		}
		if hal.IsLinkLost(ev) {
			log.Printf("chip link lost, reopening in %s", d.backoff)
			if err := d.reopen(ctx); err != nil {
				return nil
			}
		}
	}
}

// report writes one line per event.
func report(ev hal.Event) {
	switch ev := ev.(type) {
	case hal.HardwareEvent:
		log.Printf("hal event %s status=%s", ev.Event, ev.Status)
	case hal.ResponseEvent:
		log.Printf("response %s %+v", ev.Msg.Opcode(), ev.Msg)
	case hal.NotificationEvent:
		switch n := ev.Msg.(type) {
		case uci.ShortMacTwoWayRangeDataNtf:
			reportRange(n.RangeDataHeader, n.Measurements, 4)
		case uci.ExtendedMacTwoWayRangeDataNtf:
			reportRange(n.RangeDataHeader, n.Measurements, 16)
		default:
			log.Printf("notification %s %+v", n.Opcode(), n)
		}
	}
}

func reportRange(h uci.RangeDataHeader, ms []uci.TwoWayMeasurement, macDigits int) {
	for _, m := range ms {
		log.Printf("range session=%d seq=%d peer=%0*x status=%s distance=%dcm",
			h.SessionID, h.SequenceNumber, macDigits, m.MacAddress, m.Status, m.Distance)
	}
}
