package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ericogr/ac-carrier-monitor/pkg/carrier"
	"github.com/ericogr/ac-carrier-monitor/pkg/sensor"
)

type SPIConfig struct {
	Port    string `json:"port" yaml:"port"`
	SpeedHz int64  `json:"speed_hz" yaml:"speed_hz"`
	Settle  int    `json:"settle_probes" yaml:"settle_probes"`
}

// SupplyConfig selects the reference: a nominal Vdd or an explicit Vref.
type SupplyConfig struct {
	Vdd  string   `json:"vdd,omitempty" yaml:"vdd,omitempty"`
	Vref *float64 `json:"vref,omitempty" yaml:"vref,omitempty"`
}

type CarrierConfig struct {
	// Midline defaults to half the reference voltage.
	Midline          *float64 `json:"midline_v,omitempty" yaml:"midline_v,omitempty"`
	Hysteresis       float64  `json:"hysteresis_v" yaml:"hysteresis_v"`
	MinCrossingMs    float64  `json:"min_crossing_ms" yaml:"min_crossing_ms"`
	LockHalfCycles   int      `json:"lock_half_cycles" yaml:"lock_half_cycles"`
	Tolerance        float64  `json:"tolerance" yaml:"tolerance"`
	TrackTolerance   float64  `json:"track_tolerance" yaml:"track_tolerance"`
	Smoothing        float64  `json:"smoothing" yaml:"smoothing"`
	UnlockHalfCycles float64  `json:"unlock_half_cycles" yaml:"unlock_half_cycles"`
}

type SimulationConfig struct {
	FrequencyHz     float64 `json:"frequency_hz" yaml:"frequency_hz"`
	AmplitudeV      float64 `json:"amplitude_v" yaml:"amplitude_v"`
	NoiseV          float64 `json:"noise_v" yaml:"noise_v"`
	InitProbes      int     `json:"init_probes" yaml:"init_probes"`
	ConversionPolls int     `json:"conversion_polls" yaml:"conversion_polls"`
	StaleEvery      int     `json:"stale_every" yaml:"stale_every"`
}

type Config struct {
	Channel         int              `json:"channel" yaml:"channel"`
	Supply          SupplyConfig     `json:"supply" yaml:"supply"`
	FlushIntervalMs int              `json:"flush_interval_ms" yaml:"flush_interval_ms"`
	PollIntervalMs  int              `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	SensorType      string           `json:"sensor_type" yaml:"sensor_type"`
	SPI             SPIConfig        `json:"spi" yaml:"spi"`
	Carrier         CarrierConfig    `json:"carrier" yaml:"carrier"`
	Simulation      SimulationConfig `json:"simulation" yaml:"simulation"`
	Outputs         []string         `json:"outputs" yaml:"outputs"`
	LogLevel        string           `json:"log_level" yaml:"log_level"`
}

const (
	OutputLog     = "log"
	OutputConsole = "console"
)

func DefaultConfig() Config {
	p := carrier.DefaultParams(0)
	return Config{
		Channel:         0,
		FlushIntervalMs: 1000,
		SensorType:      sensor.TypeReal,
		SPI:             SPIConfig{Port: "", SpeedHz: sensor.DefaultSPISpeedHz, Settle: sensor.DefaultSettle},
		Carrier: CarrierConfig{
			Hysteresis:       p.Hysteresis,
			MinCrossingMs:    float64(p.MinCrossingInterval) / float64(time.Millisecond),
			LockHalfCycles:   p.LockHalfCycles,
			Tolerance:        p.Tolerance,
			TrackTolerance:   p.TrackTolerance,
			Smoothing:        p.Smoothing,
			UnlockHalfCycles: p.UnlockHalfCycles,
		},
		Simulation: SimulationConfig{FrequencyHz: 60, AmplitudeV: 1.0, NoiseV: 0.01, InitProbes: 3},
		Outputs:    []string{OutputLog},
		LogLevel:   "info",
	}
}

// Load reads a YAML (or JSON) file over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decode(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every setting that can be checked without hardware.
func (c Config) Validate() error {
	if _, err := sensor.ParseChannel(c.Channel); err != nil {
		return err
	}
	ref, err := c.Reference()
	if err != nil {
		return err
	}
	if c.FlushIntervalMs <= 0 {
		return &sensor.ConfigurationError{Field: "flush_interval_ms", Reason: "must be > 0", Value: c.FlushIntervalMs}
	}
	if c.PollIntervalMs < 0 {
		return &sensor.ConfigurationError{Field: "poll_interval_ms", Reason: "must be >= 0", Value: c.PollIntervalMs}
	}
	switch c.SensorType {
	case sensor.TypeReal, sensor.TypeSimulation:
	default:
		return &sensor.ConfigurationError{Field: "sensor_type", Reason: "want real or simulation", Value: c.SensorType}
	}
	if len(c.Outputs) == 0 {
		return &sensor.ConfigurationError{Field: "outputs", Reason: "at least one output is required"}
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o) {
		case OutputLog, OutputConsole:
		default:
			return &sensor.ConfigurationError{Field: "outputs", Reason: "unknown output, want log or console", Value: o}
		}
	}
	if err := c.CarrierParams(ref).Validate(); err != nil {
		return &sensor.ConfigurationError{Field: "carrier", Reason: err.Error()}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return &sensor.ConfigurationError{Field: "log_level", Reason: err.Error(), Value: c.LogLevel}
	}
	return nil
}

func (c Config) Reference() (sensor.Reference, error) {
	return sensor.NewReference(c.Supply.Vdd, c.Supply.Vref)
}

// CarrierParams maps the carrier section onto estimator parameters. The
// midline falls back to half of ref.
func (c Config) CarrierParams(ref sensor.Reference) carrier.Params {
	midline := ref.Volts() / 2
	if c.Carrier.Midline != nil {
		midline = *c.Carrier.Midline
	}
	return carrier.Params{
		Midline:             midline,
		Hysteresis:          c.Carrier.Hysteresis,
		MinCrossingInterval: time.Duration(c.Carrier.MinCrossingMs * float64(time.Millisecond)),
		LockHalfCycles:      c.Carrier.LockHalfCycles,
		Tolerance:           c.Carrier.Tolerance,
		TrackTolerance:      c.Carrier.TrackTolerance,
		Smoothing:           c.Carrier.Smoothing,
		UnlockHalfCycles:    c.Carrier.UnlockHalfCycles,
	}
}

func (c Config) SensorOptions() sensor.Options {
	return sensor.Options{
		Type: c.SensorType,
		SPI:  sensor.SPIOptions{Port: c.SPI.Port, SpeedHz: c.SPI.SpeedHz, Settle: c.SPI.Settle},
		Simulation: sensor.SimOptions{
			FrequencyHz:     c.Simulation.FrequencyHz,
			AmplitudeV:      c.Simulation.AmplitudeV,
			NoiseV:          c.Simulation.NoiseV,
			InitProbes:      c.Simulation.InitProbes,
			ConversionPolls: c.Simulation.ConversionPolls,
			StaleEvery:      c.Simulation.StaleEvery,
		},
	}
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RegisterFlags declares the command line overrides on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to YAML or JSON config file")
	fs.IntP("channel", "c", 0, "mcp3008 carrier channel (0-7)")
	fs.StringP("vdd", "v", "", "mcp3008 voltage drain: 3v3|5v")
	fs.Float64P("vref", "r", 0, "mcp3008 voltage reference in volts (excludes --vdd)")
	fs.IntP("flush-interval", "t", 1000, "dump stats delay in milliseconds")
	fs.Int("poll-interval-ms", 0, "pause between loop iterations in milliseconds (0 spins)")
	fs.String("sensor-type", "", "sensor type: real|simulation")
	fs.String("spi-port", "", "SPI port (e.g. /dev/spidev0.0, empty for the first one)")
	fs.Int64("spi-speed-hz", 0, "SPI clock in Hz")
	fs.String("outputs", "", "Comma-separated outputs (log,console)")
	fs.String("log-level", "", "log level: trace|debug|info|warn|error")
	fs.Float64("sim-frequency", 0, "simulated carrier frequency in Hz")
	fs.Float64("sim-amplitude", 0, "simulated carrier amplitude in volts")
	fs.Float64("midline", 0, "carrier midline in volts (default half the reference)")
}

// LoadFromFlags loads the file named by --config and applies every flag the
// user set explicitly on top of it.
func LoadFromFlags(fs *pflag.FlagSet) (Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(fs, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}
	set("channel", func() (e error) { cfg.Channel, e = fs.GetInt("channel"); return })
	// a supply flag replaces the other choice from the file; both flags conflict
	set("vdd", func() (e error) {
		cfg.Supply.Vdd, e = fs.GetString("vdd")
		if !fs.Changed("vref") {
			cfg.Supply.Vref = nil
		}
		return
	})
	set("vref", func() error {
		v, e := fs.GetFloat64("vref")
		cfg.Supply.Vref = &v
		if !fs.Changed("vdd") {
			cfg.Supply.Vdd = ""
		}
		return e
	})
	set("flush-interval", func() (e error) { cfg.FlushIntervalMs, e = fs.GetInt("flush-interval"); return })
	set("poll-interval-ms", func() (e error) { cfg.PollIntervalMs, e = fs.GetInt("poll-interval-ms"); return })
	set("sensor-type", func() (e error) { cfg.SensorType, e = fs.GetString("sensor-type"); return })
	set("spi-port", func() (e error) { cfg.SPI.Port, e = fs.GetString("spi-port"); return })
	set("spi-speed-hz", func() (e error) { cfg.SPI.SpeedHz, e = fs.GetInt64("spi-speed-hz"); return })
	set("outputs", func() error {
		s, e := fs.GetString("outputs")
		cfg.Outputs = parseOutputs(s)
		return e
	})
	set("log-level", func() (e error) { cfg.LogLevel, e = fs.GetString("log-level"); return })
	set("sim-frequency", func() (e error) { cfg.Simulation.FrequencyHz, e = fs.GetFloat64("sim-frequency"); return })
	set("sim-amplitude", func() (e error) { cfg.Simulation.AmplitudeV, e = fs.GetFloat64("sim-amplitude"); return })
	set("midline", func() error {
		v, e := fs.GetFloat64("midline")
		cfg.Carrier.Midline = &v
		return e
	})
	return err
}

// parseOutputs splits a comma separated output list, dropping blanks and
// folding names to lower case.
func parseOutputs(s string) []string {
	var names []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' }) {
		if name := strings.ToLower(strings.TrimSpace(f)); name != "" {
			names = append(names, name)
		}
	}
	return names
}
