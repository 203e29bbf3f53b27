// Package stats accumulates carrier estimates over a wall-clock window.
package stats

import (
	"sync"
	"time"

	"github.com/ericogr/ac-carrier-monitor/pkg/carrier"
)

// RollingStats are the running sums of the current window.
type RollingStats struct {
	Samples      int
	SumFrequency float64
	SumMax       float64
	SumMin       float64
}

// Summary is what a flush reports. Samples == 0 means nothing was collected.
type Summary struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Samples       int       `json:"samples"`
	MeanFrequency float64   `json:"mean_frequency_hz"`
	MeanMax       float64   `json:"mean_amplitude_hi_v"`
	MeanMin       float64   `json:"mean_amplitude_lo_v"`
}

func (s Summary) Empty() bool { return s.Samples == 0 }

type Aggregator struct {
	mu        sync.Mutex
	interval  time.Duration
	lastFlush time.Time
	rs        RollingStats
}

func NewAggregator(interval time.Duration, now time.Time) *Aggregator {
	return &Aggregator{interval: interval, lastFlush: now}
}

func (a *Aggregator) Record(e carrier.Estimate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rs.Samples++
	a.rs.SumFrequency += e.Frequency
	a.rs.SumMax += e.Envelope.Max
	a.rs.SumMin += e.Envelope.Min
}

// Due reports whether the flush interval has elapsed at now.
func (a *Aggregator) Due(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return now.Sub(a.lastFlush) >= a.interval
}

// Flush closes the current window and starts a new one at now.
func (a *Aggregator) Flush(now time.Time) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flush(now)
}

// FlushIfDue flushes only when the interval has elapsed at now. The check and
// the flush happen under one lock, so of several callers racing on the same
// window only one gets ok.
func (a *Aggregator) FlushIfDue(now time.Time) (Summary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if now.Sub(a.lastFlush) < a.interval {
		return Summary{}, false
	}
	return a.flush(now), true
}

func (a *Aggregator) flush(now time.Time) Summary {
	s := Summary{Start: a.lastFlush, End: now, Samples: a.rs.Samples}
	if n := float64(a.rs.Samples); n > 0 {
		s.MeanFrequency = a.rs.SumFrequency / n
		s.MeanMax = a.rs.SumMax / n
		s.MeanMin = a.rs.SumMin / n
	}
	a.rs = RollingStats{}
	a.lastFlush = now
	return s
}

// Snapshot returns a copy of the running sums.
func (a *Aggregator) Snapshot() RollingStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rs
}
