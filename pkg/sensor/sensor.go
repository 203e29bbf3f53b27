package sensor

// Channel selects one of the eight MCP3008 inputs.
type Channel int

const (
	MinChannel Channel = 0
	MaxChannel Channel = 7
)

// ParseChannel validates a raw channel number.
func ParseChannel(v int) (Channel, error) {
	if v < int(MinChannel) || v > int(MaxChannel) {
		return 0, &ConfigurationError{Field: "channel", Reason: "channel is not in range from 0 to 7", Value: v}
	}
	return Channel(v), nil
}

func (c Channel) Valid() bool { return c >= MinChannel && c <= MaxChannel }

type Reading struct {
	Channel Channel `json:"channel"`
	Raw     uint16  `json:"raw"`
	Voltage float64 `json:"voltage"`
}

type ProbeStatus int

const (
	ProbeInitializing ProbeStatus = iota
	ProbeReady
)

// Conversion is the outcome of one poll exchange. Pending reports a conversion
// still in progress, in which case Channel and Code are meaningless.
type Conversion struct {
	Pending bool
	Channel Channel
	Code    uint16
}

// Transport is the byte-level link to the converter. Every call performs at
// most one exchange and never waits for the hardware. Failures are returned as
// *TransportError or *ProtocolError.
type Transport interface {
	Probe() (ProbeStatus, error)
	Start(ch Channel) error
	Poll() (Conversion, error)
	Close() error
}
