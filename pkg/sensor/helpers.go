package sensor

import "time"

// Options selects and parameterizes a transport implementation.
type Options struct {
	Type       string
	SPI        SPIOptions
	Simulation SimOptions
}

const (
	TypeReal       = "real"
	TypeSimulation = "simulation"
)

// NewTransport builds the transport named by opts.Type. now is only used by
// the simulated transport.
func NewTransport(opts Options, ref Reference, now func() time.Time) (Transport, error) {
	switch opts.Type {
	case TypeReal, "":
		t, err := NewMCP3008Transport(opts.SPI)
		if err != nil {
			return nil, err
		}
		return t, nil
	case TypeSimulation:
		return NewFakeTransport(opts.Simulation, ref, now), nil
	}
	return nil, &ConfigurationError{Field: "sensor_type", Reason: "unknown sensor type, want real or simulation", Value: opts.Type}
}
