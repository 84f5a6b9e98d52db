package uci

import (
	"errors"
	"fmt"
)

var (
	// ErrFrame marks a fragment whose header or length is malformed.
	ErrFrame = errors.New("uci: malformed frame")
	// ErrUnsupportedMessage marks a packet with no decodable variant.
	ErrUnsupportedMessage = errors.New("uci: unsupported message")
	// ErrMalformedPayload marks a known opcode whose payload is truncated.
	ErrMalformedPayload = errors.New("uci: malformed payload")
)

// FrameError describes why a fragment was rejected.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFrame, e.Reason)
}

func (e *FrameError) Unwrap() error { return ErrFrame }

// DecodeError ties a decode failure to the packet it came from.
type DecodeError struct {
	Type MessageType
	Op   Opcode
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s: %v", e.Type, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
