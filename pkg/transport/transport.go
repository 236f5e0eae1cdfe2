// Package transport supplies the byte-stream link between the fiscal driver
// and a printer device. The driver is transport-agnostic: anything that can
// open, read, write and close a stream can carry the protocol.
package transport

import "time"

// Transport is a byte-stream connection to a fiscal printer.
type Transport interface {
	// Open establishes the connection. Calling Open on an open transport is
	// an error; callers Close first when reconnecting.
	Open() error

	// Read reads response bytes from the device.
	Read(p []byte) (int, error)

	// Write sends frame bytes to the device.
	Write(p []byte) (int, error)

	// SetReadDeadline bounds subsequent Read calls. A zero time clears the
	// deadline.
	SetReadDeadline(t time.Time) error

	// Close tears the connection down. Closing a closed transport is a no-op.
	Close() error

	// IsOpen reports whether the connection is established.
	IsOpen() bool
}
