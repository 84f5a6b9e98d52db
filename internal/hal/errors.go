package hal

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means no chip could be acquired, or the adapter
	// holds no open session.
	ErrServiceUnavailable = errors.New("hal: service unavailable")
	// ErrHardwareRejected means the chip answered with a non-success status.
	ErrHardwareRejected = errors.New("hal: hardware rejected request")
	// ErrTransport means a fragment could not be handed to the chip.
	ErrTransport = errors.New("hal: transport error")
	// ErrInvalidState means the call is not valid in the adapter's state.
	ErrInvalidState = errors.New("hal: invalid state")
)

// ChipError is returned by Chip implementations when the hardware reports a
// non-success status.
type ChipError struct {
	Status Status
}

func (e *ChipError) Error() string {
	return fmt.Sprintf("chip status %s", e.Status)
}

// StatusOf extracts the hardware status carried by err. Errors that carry
// none report StatusFailed; a nil error is StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var ce *ChipError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return StatusFailed
}

// HardwareRejectedError reports a failed init request.
type HardwareRejectedError struct {
	Op     string
	Status Status
	Err    error
}

func (e *HardwareRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hal: %s rejected with status %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("hal: %s rejected with status %s", e.Op, e.Status)
}

func (e *HardwareRejectedError) Is(target error) bool { return target == ErrHardwareRejected }

func (e *HardwareRejectedError) Unwrap() error { return e.Err }

// TransportError reports a fragment that was not fully written. Sent counts
// the fragments of the command that were delivered before the failure.
type TransportError struct {
	Fragment int
	Sent     int
	Wrote    int
	Want     int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hal: fragment %d: %v", e.Fragment, e.Err)
	}
	return fmt.Sprintf("hal: fragment %d: short write %d/%d bytes", e.Fragment, e.Wrote, e.Want)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }
