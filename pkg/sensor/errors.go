package sensor

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when a conversion is requested while the driver is
// still initializing or already has one in flight.
var ErrNotReady = errors.New("driver is not ready for a new conversion")

// ConfigurationError reports invalid settings. It is always raised before any
// hardware exchange takes place.
type ConfigurationError struct {
	Field  string
	Reason string
	Value  any
}

func (e *ConfigurationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("config %s: %s (provided %v)", e.Field, e.Reason, e.Value)
}

// TransportError wraps an I/O failure on the SPI link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response the converter should never produce.
type ProtocolError struct {
	Op    string
	Frame []byte
	Msg   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %s (frame % X)", e.Op, e.Msg, e.Frame)
}

// IsFatal reports whether err came from the transport or the protocol layer.
func IsFatal(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}
