package uart

import (
	"io"

	"go.bug.st/serial"
)

// Port is the minimal serial port the chip needs. serial.Port satisfies it,
// and tests use TestablePort.
type Port interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the serial device at path.
type PortOpener func(path string, opts PortOptions) (Port, error)

// OpenSerial opens a real serial device.
func OpenSerial(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
