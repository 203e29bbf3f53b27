package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	startBit     = 0x01
	singleEnded  = 0x08
	nullBitMask  = 0x04
	codeHighMask = 0x03
	frameLen     = 3
	// MCP3008 is rated for 1.35MHz at 2.7V, 1MHz keeps it valid on 3.3V rails.
	DefaultSPISpeedHz = 1_000_000
	DefaultSettle     = 3
)

// SPIOptions selects the bus the MCP3008 is wired to.
type SPIOptions struct {
	Port    string
	SpeedHz int64
	// Settle is the number of consecutive well-framed probes required before
	// the chip is considered ready.
	Settle int
}

type MCP3008Transport struct {
	port    spi.PortCloser
	conn    spi.Conn
	settle  int
	good    int
	ready   bool
	pending bool
	channel Channel
	rx      [frameLen]byte
}

func NewMCP3008Transport(opts SPIOptions) (*MCP3008Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, &TransportError{Op: "host init", Err: err}
	}
	p, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, &TransportError{Op: "open spi", Err: err}
	}
	speed := opts.SpeedHz
	if speed <= 0 {
		speed = DefaultSPISpeedHz
	}
	freq := physic.Frequency(speed) * physic.Hertz
	if err := p.LimitSpeed(freq); err != nil {
		_ = p.Close()
		return nil, &TransportError{Op: "limit speed", Err: err}
	}
	c, err := p.Connect(freq, spi.Mode0, 8)
	if err != nil {
		_ = p.Close()
		return nil, &TransportError{Op: "connect spi", Err: err}
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &MCP3008Transport{port: p, conn: c, settle: settle}, nil
}

func (m *MCP3008Transport) Close() error {
	if m.port != nil {
		return m.port.Close()
	}
	return nil
}

// Probe reads channel 0 and checks the frame. A floating MISO line reads back
// with the null bit set, which means the chip is not powered or not wired yet.
func (m *MCP3008Transport) Probe() (ProbeStatus, error) {
	if m.ready {
		return ProbeReady, nil
	}
	frame, err := m.exchange("probe", MinChannel)
	if err != nil {
		return ProbeInitializing, err
	}
	if _, ok := decodeFrame(frame); !ok {
		m.good = 0
		return ProbeInitializing, nil
	}
	m.good++
	if m.good < m.settle {
		return ProbeInitializing, nil
	}
	m.ready = true
	return ProbeReady, nil
}

func (m *MCP3008Transport) Start(ch Channel) error {
	if !ch.Valid() {
		return &ConfigurationError{Field: "channel", Reason: "channel is not in range from 0 to 7", Value: int(ch)}
	}
	m.channel = ch
	m.pending = true
	return nil
}

// Poll clocks the pending conversion out of the chip. The MCP3008 samples and
// shifts the result within the same transaction, so it never reports Pending.
func (m *MCP3008Transport) Poll() (Conversion, error) {
	if !m.pending {
		return Conversion{}, &ProtocolError{Op: "poll", Msg: "no conversion requested"}
	}
	frame, err := m.exchange("poll", m.channel)
	if err != nil {
		return Conversion{}, err
	}
	code, ok := decodeFrame(frame)
	if !ok {
		return Conversion{}, &ProtocolError{Op: "poll", Frame: append([]byte(nil), frame...), Msg: "null bit not low"}
	}
	m.pending = false
	return Conversion{Channel: m.channel, Code: code}, nil
}

func (m *MCP3008Transport) exchange(op string, ch Channel) ([]byte, error) {
	tx := encodeFrame(ch)
	if err := m.conn.Tx(tx[:], m.rx[:]); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("spi tx channel %d: %w", ch, err)}
	}
	return m.rx[:], nil
}

// encodeFrame builds a single-ended read command: start bit, then SGL and the
// three channel bits in the top nibble of the second byte.
func encodeFrame(ch Channel) [frameLen]byte {
	return [frameLen]byte{startBit, byte((singleEnded | int(ch)) << 4), 0}
}

// decodeFrame extracts the 10-bit result. ok is false when the null bit that
// precedes B9 is not low.
func decodeFrame(rx []byte) (code uint16, ok bool) {
	if len(rx) != frameLen {
		return 0, false
	}
	if rx[1]&nullBitMask != 0 {
		return 0, false
	}
	return uint16(rx[1]&codeHighMask)<<8 | uint16(rx[2]), true
}
