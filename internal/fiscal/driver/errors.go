package driver

import (
	"errors"
	"fmt"

	"github.com/tillworks/fiscal-pos-api/pkg/fiscal"
)

// ErrorKind classifies a device error for retry policy.
type ErrorKind int

const (
	// ErrorTransient covers busy/buffer-full style conditions. Retryable
	// with backoff.
	ErrorTransient ErrorKind = iota
	// ErrorDisconnected means the link dropped. The driver reconnects
	// before the next retry.
	ErrorDisconnected
	// ErrorFiscalFault means the device rejected the command at the fiscal
	// memory level. Never retried: blind retries against fiscal memory can
	// duplicate legal records.
	ErrorFiscalFault
)

func (k ErrorKind) String() string {
	return [...]string{"Transient", "Disconnected", "FiscalFault"}[k]
}

// DeviceError is a classified failure reported by the device or the link.
type DeviceError struct {
	Kind ErrorKind
	Code fiscal.DeviceCode
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("device error (%s): %s", e.Kind, e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }

var (
	// ErrTimeout is returned when the device does not answer a command
	// within the configured window.
	ErrTimeout = errors.New("driver: command timed out")

	// ErrFaulted is returned while the device is in the Faulted state;
	// no commands are accepted until an operator clears the fault.
	ErrFaulted = errors.New("driver: device faulted, awaiting operator acknowledgment")
)

// IsFiscalFault reports whether err is a non-retryable fiscal fault.
func IsFiscalFault(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Kind == ErrorFiscalFault
}
