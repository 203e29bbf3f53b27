package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimOptions describes the synthetic waveform produced by FakeTransport.
type SimOptions struct {
	FrequencyHz float64
	AmplitudeV  float64
	// OffsetV is the DC bias; zero means mid-scale of the reference.
	OffsetV float64
	NoiseV  float64
	// InitProbes is the number of probes answered with "initializing".
	InitProbes int
	// ConversionPolls is the number of polls answered with "pending" before
	// each result.
	ConversionPolls int
	// StaleEvery injects a result for a neighbouring channel before every
	// n-th conversion; zero disables it.
	StaleEvery int
	Seed       int64
}

// FakeTransport answers like an MCP3008 with a sine wave on every channel.
type FakeTransport struct {
	mu      sync.Mutex
	opts    SimOptions
	ref     Reference
	now     func() time.Time
	start   time.Time
	rng     *rand.Rand
	probes  int
	pending bool
	channel Channel
	waits   int
	convs   int
	stale   bool
}

func NewFakeTransport(opts SimOptions, ref Reference, now func() time.Time) *FakeTransport {
	if now == nil {
		now = time.Now
	}
	if opts.OffsetV == 0 {
		opts.OffsetV = ref.Volts() / 2
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FakeTransport{opts: opts, ref: ref, now: now, start: now(), rng: rand.New(rand.NewSource(seed))}
}

func (f *FakeTransport) Probe() (ProbeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probes < f.opts.InitProbes {
		f.probes++
		return ProbeInitializing, nil
	}
	return ProbeReady, nil
}

func (f *FakeTransport) Start(ch Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = ch
	f.pending = true
	f.waits = 0
	f.convs++
	f.stale = f.opts.StaleEvery > 0 && f.convs%f.opts.StaleEvery == 0
	return nil
}

func (f *FakeTransport) Poll() (Conversion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pending {
		return Conversion{}, &ProtocolError{Op: "poll", Msg: "no conversion requested"}
	}
	if f.waits < f.opts.ConversionPolls {
		f.waits++
		return Conversion{Pending: true}, nil
	}
	if f.stale {
		f.stale = false
		return Conversion{Channel: (f.channel + 1) % (MaxChannel + 1), Code: f.sample()}, nil
	}
	f.pending = false
	return Conversion{Channel: f.channel, Code: f.sample()}, nil
}

func (f *FakeTransport) sample() uint16 {
	t := f.now().Sub(f.start).Seconds()
	v := f.opts.OffsetV + f.opts.AmplitudeV*math.Sin(2*math.Pi*f.opts.FrequencyHz*t)
	if f.opts.NoiseV > 0 {
		v += (f.rng.Float64()*2 - 1) * f.opts.NoiseV
	}
	return f.ref.ToCode(v)
}

func (f *FakeTransport) Close() error { return nil }
