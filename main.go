package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ericogr/ac-carrier-monitor/pkg/carrier"
	"github.com/ericogr/ac-carrier-monitor/pkg/config"
	"github.com/ericogr/ac-carrier-monitor/pkg/monitor"
	"github.com/ericogr/ac-carrier-monitor/pkg/output"
	"github.com/ericogr/ac-carrier-monitor/pkg/output/console"
	"github.com/ericogr/ac-carrier-monitor/pkg/output/logger"
	"github.com/ericogr/ac-carrier-monitor/pkg/sensor"
	"github.com/ericogr/ac-carrier-monitor/pkg/stats"
)

var log zerolog.Logger

func init() {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano}
	log = zerolog.New(cw).With().Timestamp().Logger()
}

var rootCmd = &cobra.Command{
	Use:   "ac-carrier-monitor",
	Short: "Track frequency and amplitude of an AC carrier sampled by an MCP3008",
	Long: `ac-carrier-monitor samples one MCP3008 channel over SPI, locks onto the
periodic waveform on it and logs rolling averages of its frequency and
amplitude envelope every flush interval.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ce *sensor.ConfigurationError
		switch {
		case errors.As(err, &ce):
			log.Error().Err(err).Msg("invalid configuration")
		case sensor.IsFatal(err):
			log.Error().Err(err).Msg("mcp3008 failure")
		default:
			log.Error().Err(err).Msg("exiting")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	log = log.Level(lvl)
	log.Info().Interface("config", cfg).Msg("program started")

	ref, err := cfg.Reference()
	if err != nil {
		return err
	}
	ch, err := sensor.ParseChannel(cfg.Channel)
	if err != nil {
		return err
	}
	est, err := carrier.NewEstimator(cfg.CarrierParams(ref))
	if err != nil {
		return fmt.Errorf("carrier estimator: %w", err)
	}
	outs, err := initOutputs(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, o := range outs {
			_ = o.Close()
		}
	}()

	tr, err := sensor.NewTransport(cfg.SensorOptions(), ref, time.Now)
	if err != nil {
		return err
	}
	defer tr.Close()

	loop, err := monitor.New(sensor.NewDriver(tr, ref), est, stats.NewAggregator(cfg.FlushInterval(), time.Now()), monitor.Options{
		Channel: ch,
		Outputs: outs,
		Pace:    cfg.PollInterval(),
		Logger:  log,
	})
	if err != nil {
		return err
	}
	log.Info().Str("reference", ref.String()).Int("channel", int(ch)).Str("sensor", cfg.SensorType).Msg("sampling")
	return loop.Run(ctx)
}

// initOutputs creates the configured outputs in order.
func initOutputs(cfg config.Config, l zerolog.Logger) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	for _, name := range cfg.Outputs {
		switch strings.ToLower(name) {
		case config.OutputLog:
			outs = append(outs, logger.NewLogger(l))
		case config.OutputConsole:
			outs = append(outs, console.NewConsole())
		default:
			return nil, &sensor.ConfigurationError{Field: "outputs", Reason: "unknown output", Value: name}
		}
	}
	return outs, nil
}
