package carrier

import (
	"errors"
	"math"
	"testing"
	"time"
)

const sampleRate = 4000.0

type feeder struct {
	e *Estimator
	t time.Time
	n int
}

func newFeeder(t *testing.T, p Params) *feeder {
	t.Helper()
	e, err := NewEstimator(p)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	return &feeder{e: e, t: time.Date(2025, 9, 19, 14, 0, 0, 0, time.UTC)}
}

func (f *feeder) next(v float64) Result {
	f.n++
	f.t = f.t.Add(time.Duration(float64(time.Second) / sampleRate))
	return f.e.Observe(f.t, v)
}

// sine feeds d worth of a sine wave and returns every non-NoChange result.
func (f *feeder) sine(freq, amp, offset float64, d time.Duration) []Result {
	var out []Result
	steps := int(d.Seconds() * sampleRate)
	for i := 0; i < steps; i++ {
		phase := 2 * math.Pi * freq * float64(f.n+1) / sampleRate
		if r := f.next(offset + amp*math.Sin(phase)); r.Event != NoChange {
			out = append(out, r)
		}
	}
	return out
}

func (f *feeder) constant(v float64, d time.Duration) []Result {
	var out []Result
	steps := int(d.Seconds() * sampleRate)
	for i := 0; i < steps; i++ {
		if r := f.next(v); r.Event != NoChange {
			out = append(out, r)
		}
	}
	return out
}

func TestLocksOnSixtyHertz(t *testing.T) {
	f := newFeeder(t, DefaultParams(0))
	results := f.sine(60, 1, 0, time.Second)
	if len(results) == 0 || results[0].Event != Locked {
		t.Fatalf("first event: %+v", results)
	}
	// one crossing to start timing plus LockHalfCycles half-cycles, one spare
	halfCycle := time.Second / 120
	if first := lockTime(t, DefaultParams(0)); first > time.Duration(DefaultParams(0).LockHalfCycles+2)*halfCycle {
		t.Fatalf("lock took %v", first)
	}
	for _, r := range results[1:] {
		if r.Event != Updated {
			t.Fatalf("unexpected event %v after lock", r.Event)
		}
	}
	last := results[len(results)-1].Estimate
	if math.Abs(last.Frequency-60)/60 > 0.01 {
		t.Fatalf("frequency %v not within 1%% of 60", last.Frequency)
	}
	if last.Envelope.Max < 0.95 || last.Envelope.Max > 1.0001 || last.Envelope.Min > -0.95 || last.Envelope.Min < -1.0001 {
		t.Fatalf("envelope %+v", last.Envelope)
	}
	// roughly one estimate per half-cycle
	if n := len(results); n < 100 || n > 121 {
		t.Fatalf("estimates: %d", n)
	}
}

func lockTime(t *testing.T, p Params) time.Duration {
	f := newFeeder(t, p)
	start := f.t
	steps := int(sampleRate)
	for i := 0; i < steps; i++ {
		phase := 2 * math.Pi * 60 * float64(f.n+1) / sampleRate
		if r := f.next(math.Sin(phase)); r.Event == Locked {
			return f.t.Sub(start)
		}
	}
	t.Fatalf("never locked")
	return 0
}

func TestLocksAroundMidline(t *testing.T) {
	f := newFeeder(t, DefaultParams(1.65))
	results := f.sine(50, 1.2, 1.65, 500*time.Millisecond)
	if len(results) == 0 {
		t.Fatalf("no lock")
	}
	last := results[len(results)-1].Estimate
	if math.Abs(last.Frequency-50)/50 > 0.01 {
		t.Fatalf("frequency %v", last.Frequency)
	}
}

func TestLostOnFlatSignal(t *testing.T) {
	p := DefaultParams(0)
	f := newFeeder(t, p)
	results := f.sine(60, 1, 0, 300*time.Millisecond)
	if len(results) == 0 || !f.e.Locked() {
		t.Fatalf("not locked")
	}
	start := f.t
	var lostAt time.Time
	var after []Result
	steps := int(0.5 * sampleRate)
	for i := 0; i < steps; i++ {
		r := f.next(0.3)
		switch {
		case r.Event == Lost && lostAt.IsZero():
			lostAt = f.t
		case r.Event != NoChange && !lostAt.IsZero():
			after = append(after, r)
		}
	}
	if lostAt.IsZero() {
		t.Fatalf("never lost")
	}
	budget := time.Duration((p.UnlockHalfCycles + 1) * float64(time.Second) / 120)
	if lostAt.Sub(start) > budget {
		t.Fatalf("lost after %v, budget %v", lostAt.Sub(start), budget)
	}
	if len(after) != 0 {
		t.Fatalf("estimates after loss: %+v", after)
	}
	if _, ok := f.e.Estimate(); ok {
		t.Fatalf("estimate available while unlocked")
	}

	// relock on the same instance
	results = f.sine(60, 1, 0, 300*time.Millisecond)
	if len(results) == 0 || results[0].Event != Locked {
		t.Fatalf("no relock: %+v", results)
	}
}

func TestIgnoresNonIncreasingTimestamps(t *testing.T) {
	e, err := NewEstimator(DefaultParams(0))
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	ts := time.Unix(100, 0)
	e.Observe(ts, -1)
	before := *e
	if r := e.Observe(ts, 1); r.Event != NoChange {
		t.Fatalf("event %v", r.Event)
	}
	if r := e.Observe(ts.Add(-time.Millisecond), 1); r.Event != NoChange {
		t.Fatalf("event %v", r.Event)
	}
	if e.side != before.side || e.prevT != before.prevT || e.prevV != before.prevV {
		t.Fatalf("state changed on zero delta")
	}
}

func TestRejectsChatter(t *testing.T) {
	p := DefaultParams(0)
	p.MinCrossingInterval = 3 * time.Millisecond
	f := newFeeder(t, p)
	// square wave at 60Hz with a burst of chatter right after each edge
	period := int(sampleRate) / 60
	var results []Result
	for i := 0; i < int(sampleRate); i++ {
		pos := i % period
		v := 1.0
		if pos >= period/2 {
			v = -1.0
		}
		// 0.5ms after each edge flip back for one sample
		if pos == 2 || pos == period/2+2 {
			v = -v
		}
		if r := f.next(v); r.Event != NoChange {
			results = append(results, r)
		}
	}
	if len(results) == 0 {
		t.Fatalf("chatter prevented lock")
	}
	last := results[len(results)-1].Estimate
	if math.Abs(last.Frequency-60)/60 > 0.02 {
		t.Fatalf("frequency %v", last.Frequency)
	}
}

func TestLocksOnBiasedSine(t *testing.T) {
	// the midline sits 0.2V below the waveform's centre so the two
	// polarities last different times
	f := newFeeder(t, DefaultParams(0))
	results := f.sine(60, 1, 0.2, time.Second)
	if len(results) == 0 || results[0].Event != Locked {
		t.Fatalf("no lock on biased sine: %+v", results)
	}
	for _, r := range results[1:] {
		if r.Event != Updated {
			t.Fatalf("unexpected event %v after lock", r.Event)
		}
	}
	last := results[len(results)-1].Estimate
	if math.Abs(last.Frequency-60)/60 > 0.01 {
		t.Fatalf("frequency %v not within 1%% of 60", last.Frequency)
	}
	if last.Envelope.Max < 1.15 || last.Envelope.Min > -0.75 {
		t.Fatalf("envelope %+v", last.Envelope)
	}
}

func TestNoLockOnAperiodicSignal(t *testing.T) {
	f := newFeeder(t, DefaultParams(0))
	// neither half-cycles nor the full cycles they form ever agree
	holds := []int{20, 60, 32, 44, 24, 70, 36, 20}
	v := 1.0
	for i := 0; i < 40; i++ {
		for j := 0; j < holds[i%len(holds)]; j++ {
			if r := f.next(v); r.Event != NoChange {
				t.Fatalf("unexpected %v", r.Event)
			}
		}
		v = -v
	}
}

func TestEnvelopeTracksDrift(t *testing.T) {
	f := newFeeder(t, DefaultParams(0))
	f.sine(60, 1, 0, 200*time.Millisecond)
	results := f.sine(60, 0.5, 0, 200*time.Millisecond)
	last := results[len(results)-1].Estimate
	if last.Envelope.Max > 0.51 || last.Envelope.Min < -0.51 {
		t.Fatalf("envelope did not follow amplitude: %+v", last.Envelope)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		mod  func(*Params)
		want error
	}{
		{func(p *Params) { p.Hysteresis = -1 }, ErrInvalidHysteresis},
		{func(p *Params) { p.LockHalfCycles = 1 }, ErrInvalidLockCount},
		{func(p *Params) { p.LockHalfCycles = 2 }, ErrInvalidLockCount},
		{func(p *Params) { p.Tolerance = 0 }, ErrInvalidTolerance},
		{func(p *Params) { p.TrackTolerance = 1 }, ErrInvalidTolerance},
		{func(p *Params) { p.Smoothing = 0 }, ErrInvalidSmoothing},
		{func(p *Params) { p.UnlockHalfCycles = 0 }, ErrInvalidUnlock},
	}
	for _, tt := range tests {
		p := DefaultParams(0)
		tt.mod(&p)
		if _, err := NewEstimator(p); !errors.Is(err, tt.want) {
			t.Fatalf("got %v want %v", err, tt.want)
		}
	}
}
