// Package hal binds a UWB chip speaking UCI to a single ordered event
// stream. The chip is reached through the Chip interface; inbound fragments
// are reassembled, decoded and queued for one consumer, and outbound commands
// are fragmented before they reach the chip.
package hal

import (
	"context"
	"fmt"
)

// EventKind is the kind of an asynchronous HAL event reported by the chip.
type EventKind uint8

const (
	EventOpenCplt EventKind = iota
	EventCloseCplt
	EventPostInitCplt
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpenCplt:
		return "open_cplt"
	case EventCloseCplt:
		return "close_cplt"
	case EventPostInitCplt:
		return "post_init_cplt"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Status is the HAL-level status that accompanies events and init results.
type Status uint8

const (
	StatusOK Status = iota
	StatusFailed
	StatusCmdTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusCmdTimeout:
		return "cmd_timeout"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Callback receives everything the chip reports. Implementations return nil
// even when the input could not be used.
type Callback interface {
	OnHalEvent(kind EventKind, status Status) error
	OnUciMessage(fragment []byte) error
}

// Chip is an acquired UWB chip. CoreInit and SessionInit report a
// non-success hardware status as a *ChipError.
type Chip interface {
	Open(ctx context.Context, cb Callback) error
	Close(ctx context.Context) error
	CoreInit(ctx context.Context) error
	SessionInit(ctx context.Context, sessionID int32) error
	// SendUciMessage writes one fragment and returns the number of bytes
	// the chip accepted.
	SendUciMessage(ctx context.Context, fragment []byte) (int, error)
	// LinkToDeath arranges for onDeath to be called once if the chip
	// endpoint goes away. The returned func cancels the registration.
	LinkToDeath(onDeath func()) (unlink func(), err error)
}

// Service hands out the chip.
type Service interface {
	Acquire(ctx context.Context) (Chip, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) (Chip, error)

func (f ServiceFunc) Acquire(ctx context.Context) (Chip, error) { return f(ctx) }

// StaticService always returns the same chip.
func StaticService(c Chip) Service {
	return ServiceFunc(func(context.Context) (Chip, error) { return c, nil })
}
