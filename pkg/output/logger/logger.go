// Package logger reports statistics windows through a zerolog logger.
package logger

import (
	"github.com/rs/zerolog"

	"github.com/ericogr/ac-carrier-monitor/pkg/output"
	"github.com/ericogr/ac-carrier-monitor/pkg/stats"
)

type LogOutput struct {
	log zerolog.Logger
}

func NewLogger(l zerolog.Logger) output.Output { return &LogOutput{log: l} }

func (o *LogOutput) Publish(s stats.Summary) error {
	if s.Empty() {
		o.log.Info().Msg("no samples collected yet")
		return nil
	}
	o.log.Info().
		Int("samples", s.Samples).
		Dur("window", s.End.Sub(s.Start)).
		Float64("avg_frequency_hz", s.MeanFrequency).
		Float64("avg_amplitude_hi_v", s.MeanMax).
		Float64("avg_amplitude_lo_v", s.MeanMin).
		Msg("carrier stats")
	return nil
}

func (o *LogOutput) Close() error { return nil }
