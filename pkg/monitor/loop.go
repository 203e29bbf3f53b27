// Package monitor sequences the acquisition driver, the carrier estimator and
// the statistics window in a single non-blocking poll loop.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ericogr/ac-carrier-monitor/pkg/carrier"
	"github.com/ericogr/ac-carrier-monitor/pkg/output"
	"github.com/ericogr/ac-carrier-monitor/pkg/sensor"
	"github.com/ericogr/ac-carrier-monitor/pkg/stats"
)

type Loop struct {
	driver    *sensor.Driver
	estimator *carrier.Estimator
	stats     *stats.Aggregator
	channel   sensor.Channel
	outputs   []output.Output
	now       func() time.Time
	pace      time.Duration
	log       zerolog.Logger
}

type Options struct {
	Channel sensor.Channel
	Outputs []output.Output
	// Now defaults to time.Now.
	Now func() time.Time
	// Pace is an optional pause between iterations; zero spins.
	Pace   time.Duration
	Logger zerolog.Logger
}

func New(d *sensor.Driver, e *carrier.Estimator, a *stats.Aggregator, opts Options) (*Loop, error) {
	if !opts.Channel.Valid() {
		return nil, &sensor.ConfigurationError{Field: "channel", Reason: "channel is not in range from 0 to 7", Value: int(opts.Channel)}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		driver:    d,
		estimator: e,
		stats:     a,
		channel:   opts.Channel,
		outputs:   opts.Outputs,
		now:       now,
		pace:      opts.Pace,
		log:       opts.Logger,
	}, nil
}

// Step runs one iteration. Only driver errors are returned; output failures
// are logged.
func (l *Loop) Step() error {
	reading, ok, err := l.acquire()
	if err != nil {
		return err
	}
	now := l.now()
	if ok {
		l.observe(now, reading)
	}
	if s, ok := l.stats.FlushIfDue(now); ok {
		l.publish(s)
	}
	return nil
}

// acquire advances the driver by one step and re-arms the next conversion as
// soon as the driver is ready again.
func (l *Loop) acquire() (sensor.Reading, bool, error) {
	if l.driver.State().Kind == sensor.StateReady {
		return sensor.Reading{}, false, l.request()
	}
	out, r, err := l.driver.Step()
	if err != nil {
		return sensor.Reading{}, false, fmt.Errorf("mcp3008 %s: %w", out, err)
	}
	switch out {
	case sensor.BecameReady:
		l.log.Debug().Msg("mcp3008 ready")
		return sensor.Reading{}, false, l.request()
	case sensor.Discarded:
		l.log.Trace().Msg("discarded stale conversion")
		return sensor.Reading{}, false, l.request()
	case sensor.Done:
		if err := l.request(); err != nil {
			return sensor.Reading{}, false, err
		}
		return r, r.Channel == l.channel, nil
	case sensor.Idle, sensor.StillInitializing, sensor.StillProbing:
	}
	return sensor.Reading{}, false, nil
}

func (l *Loop) request() error {
	if err := l.driver.RequestChannel(l.channel); err != nil {
		return fmt.Errorf("mcp3008 request channel %d: %w", l.channel, err)
	}
	return nil
}

func (l *Loop) observe(now time.Time, r sensor.Reading) {
	res := l.estimator.Observe(now, r.Voltage)
	switch res.Event {
	case carrier.Locked:
		l.log.Debug().Float64("frequency_hz", res.Estimate.Frequency).Msg("carrier detected")
		l.stats.Record(res.Estimate)
	case carrier.Updated:
		l.stats.Record(res.Estimate)
	case carrier.Lost:
		l.log.Debug().Msg("carrier lost")
	case carrier.NoChange:
	}
}

func (l *Loop) publish(s stats.Summary) {
	for _, o := range l.outputs {
		if err := o.Publish(s); err != nil {
			l.log.Error().Err(err).Msg("publish summary")
		}
	}
}

// Run steps until ctx is cancelled or the driver fails. The error of a
// cancelled context is not reported.
func (l *Loop) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if l.pace > 0 {
		t := time.NewTicker(l.pace)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := l.Step(); err != nil {
			return err
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
	}
}
