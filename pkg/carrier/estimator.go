// Package carrier detects a periodic AC waveform in a stream of voltage
// samples and estimates its frequency and amplitude envelope.
package carrier

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidHysteresis = errors.New("hysteresis must be non-negative")
	ErrInvalidLockCount  = errors.New("lock half-cycles must be at least 3")
	ErrInvalidTolerance  = errors.New("tolerance must be between 0 and 1")
	ErrInvalidSmoothing  = errors.New("smoothing must be in (0, 1]")
	ErrInvalidUnlock     = errors.New("unlock half-cycles must be positive")
)

// Params are the tunables of the detector.
type Params struct {
	// Midline is the voltage the waveform oscillates around.
	Midline float64
	// Hysteresis is the half-width of the dead band around Midline.
	Hysteresis float64
	// MinCrossingInterval rejects crossings closer than this to the previous one.
	MinCrossingInterval time.Duration
	// LockHalfCycles consecutive half-cycles must agree before locking.
	LockHalfCycles int
	// Tolerance is the relative deviation from the mean allowed while locking.
	Tolerance float64
	// TrackTolerance is the relative deviation from the current estimate
	// allowed for a full cycle to count while locked.
	TrackTolerance float64
	// Smoothing is the EMA coefficient applied to each new full cycle.
	Smoothing float64
	// UnlockHalfCycles expected half-cycles without a valid crossing drop the lock.
	UnlockHalfCycles float64
}

func DefaultParams(midline float64) Params {
	return Params{
		Midline:             midline,
		Hysteresis:          0.05,
		MinCrossingInterval: 2 * time.Millisecond,
		LockHalfCycles:      6,
		Tolerance:           0.1,
		TrackTolerance:      0.25,
		Smoothing:           0.2,
		UnlockHalfCycles:    4,
	}
}

func (p Params) Validate() error {
	if p.Hysteresis < 0 {
		return ErrInvalidHysteresis
	}
	if p.LockHalfCycles < 3 {
		return ErrInvalidLockCount
	}
	if p.Tolerance <= 0 || p.Tolerance >= 1 || p.TrackTolerance <= 0 || p.TrackTolerance >= 1 {
		return ErrInvalidTolerance
	}
	if p.Smoothing <= 0 || p.Smoothing > 1 {
		return ErrInvalidSmoothing
	}
	if p.UnlockHalfCycles <= 0 {
		return ErrInvalidUnlock
	}
	return nil
}

type Envelope struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Estimate struct {
	Frequency float64  `json:"frequency"`
	Envelope  Envelope `json:"envelope"`
}

type Event int

const (
	NoChange Event = iota
	Locked
	Updated
	Lost
)

func (e Event) String() string {
	switch e {
	case NoChange:
		return "no change"
	case Locked:
		return "locked"
	case Updated:
		return "updated"
	case Lost:
		return "lost"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Result is returned by Observe. Estimate is set for Locked and Updated only.
type Result struct {
	Event    Event
	Estimate Estimate
}

type side int

const (
	sideUnknown side = iota
	sideBelow
	sideAbove
)

// halfCycle is one completed interval between two registered crossings.
type halfCycle struct {
	seconds float64
	env     Envelope
}

// Estimator is a two state machine: unlocked while it collects agreeing
// half-cycles, locked while it tracks them. It is not safe for concurrent use.
type Estimator struct {
	p Params

	locked bool

	havePrev bool
	prevT    time.Time
	prevV    float64

	side      side
	haveCross bool
	lastCross time.Time
	// lastValid is the last crossing that confirmed the lock.
	lastValid time.Time
	seg       Envelope
	segSet    bool

	window []halfCycle

	halfPeriod float64
	estimate   Estimate
}

func NewEstimator(p Params) (*Estimator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{p: p, window: make([]halfCycle, 0, p.LockHalfCycles)}, nil
}

func (e *Estimator) Locked() bool { return e.locked }

// Estimate returns the latest estimate; ok is false while unlocked.
func (e *Estimator) Estimate() (Estimate, bool) { return e.estimate, e.locked }

// Observe feeds one sample. It never blocks.
func (e *Estimator) Observe(t time.Time, v float64) Result {
	if e.havePrev && !t.After(e.prevT) {
		return Result{Event: NoChange}
	}
	if e.locked && t.Sub(e.lastValid).Seconds() > e.p.UnlockHalfCycles*e.halfPeriod {
		e.reset()
		e.accept(t, v)
		return Result{Event: Lost}
	}

	res := Result{Event: NoChange}
	if ct, ok := e.crossing(t, v); ok {
		res = e.onCrossing(ct)
	}
	e.accept(t, v)
	return res
}

// accept makes (t, v) the previous sample and widens the current half-cycle envelope.
func (e *Estimator) accept(t time.Time, v float64) {
	e.prevT, e.prevV, e.havePrev = t, v, true
	if !e.segSet {
		e.seg = Envelope{Min: v, Max: v}
		e.segSet = true
		return
	}
	if v < e.seg.Min {
		e.seg.Min = v
	}
	if v > e.seg.Max {
		e.seg.Max = v
	}
}

// crossing moves the hysteresis detector and reports the interpolated
// instant of a registered crossing.
func (e *Estimator) crossing(t time.Time, v float64) (time.Time, bool) {
	high := e.p.Midline + e.p.Hysteresis
	low := e.p.Midline - e.p.Hysteresis

	var next side
	var threshold float64
	switch {
	case v >= high && e.side != sideAbove:
		next, threshold = sideAbove, high
	case v <= low && e.side != sideBelow:
		next, threshold = sideBelow, low
	default:
		return time.Time{}, false
	}
	if e.side == sideUnknown {
		e.side = next
		return time.Time{}, false
	}

	ct := t
	if e.havePrev && v != e.prevV {
		frac := (threshold - e.prevV) / (v - e.prevV)
		if frac > 0 && frac < 1 {
			ct = e.prevT.Add(time.Duration(frac * float64(t.Sub(e.prevT))))
		}
	}
	if e.haveCross {
		d := ct.Sub(e.lastCross)
		if d <= 0 || d < e.p.MinCrossingInterval {
			return time.Time{}, false
		}
	}
	e.side = next
	return ct, true
}

func (e *Estimator) onCrossing(ct time.Time) Result {
	if !e.haveCross {
		e.startSegment(ct)
		return Result{Event: NoChange}
	}
	hc := halfCycle{seconds: ct.Sub(e.lastCross).Seconds(), env: e.seg}
	e.startSegment(ct)

	if !e.locked {
		return e.collect(ct, hc)
	}
	return e.track(ct, hc)
}

func (e *Estimator) startSegment(ct time.Time) {
	e.lastCross = ct
	e.haveCross = true
	e.segSet = false
}

// collect keeps the last LockHalfCycles half-cycles and locks when the full
// cycles they form agree. Pairs are compared rather than single half-cycles
// because a DC bias against the midline lengthens one polarity and shortens
// the other by the same amount.
func (e *Estimator) collect(ct time.Time, hc halfCycle) Result {
	if len(e.window) == e.p.LockHalfCycles {
		copy(e.window, e.window[1:])
		e.window = e.window[:len(e.window)-1]
	}
	e.window = append(e.window, hc)
	if len(e.window) < e.p.LockHalfCycles {
		return Result{Event: NoChange}
	}

	cycles := make([]float64, len(e.window)-1)
	for i := range cycles {
		cycles[i] = e.window[i].seconds + e.window[i+1].seconds
	}
	mean := stat.Mean(cycles, nil)
	if mean <= 0 {
		return Result{Event: NoChange}
	}
	if floats.Max(cycles)-mean > e.p.Tolerance*mean || mean-floats.Min(cycles) > e.p.Tolerance*mean {
		return Result{Event: NoChange}
	}

	e.locked = true
	e.halfPeriod = mean / 2
	e.lastValid = ct
	e.estimate = Estimate{Frequency: 1 / mean, Envelope: span(e.window)}
	n := copy(e.window, e.window[len(e.window)-2:])
	e.window = e.window[:n]
	return Result{Event: Locked, Estimate: e.estimate}
}

// track refines a held lock with the full cycle ending at this half-cycle.
func (e *Estimator) track(ct time.Time, hc halfCycle) Result {
	e.window[0] = e.window[len(e.window)-1]
	e.window = append(e.window[:1], hc)

	full := e.window[0].seconds + hc.seconds
	dev := full - 2*e.halfPeriod
	if dev < 0 {
		dev = -dev
	}
	if dev > e.p.TrackTolerance*2*e.halfPeriod {
		return Result{Event: NoChange}
	}
	e.halfPeriod += e.p.Smoothing * (full/2 - e.halfPeriod)
	e.lastValid = ct

	e.estimate = Estimate{Frequency: 1 / (2 * e.halfPeriod), Envelope: span(e.window)}
	return Result{Event: Updated, Estimate: e.estimate}
}

func (e *Estimator) reset() {
	e.locked = false
	e.havePrev = false
	e.side = sideUnknown
	e.haveCross = false
	e.segSet = false
	e.window = e.window[:0]
	e.halfPeriod = 0
	e.estimate = Estimate{}
}

func span(hcs []halfCycle) Envelope {
	mins := make([]float64, len(hcs))
	maxs := make([]float64, len(hcs))
	for i, h := range hcs {
		mins[i] = h.env.Min
		maxs[i] = h.env.Max
	}
	return Envelope{Min: floats.Min(mins), Max: floats.Max(maxs)}
}
