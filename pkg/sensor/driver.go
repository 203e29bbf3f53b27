package sensor

import "fmt"

type StateKind int

const (
	StateInitializing StateKind = iota
	StateReady
	StateProbing
)

func (k StateKind) String() string {
	switch k {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateProbing:
		return "probing"
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// State is the driver's current state. Channel is only meaningful while
// probing.
type State struct {
	Kind    StateKind
	Channel Channel
}

type Outcome int

const (
	// Idle: Step was called in Ready, nothing to do until RequestChannel.
	Idle Outcome = iota
	StillInitializing
	BecameReady
	StillProbing
	// Done carries a reading for the requested channel.
	Done
	// Discarded: the converter answered for another channel.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case StillInitializing:
		return "still initializing"
	case BecameReady:
		return "ready"
	case StillProbing:
		return "still probing"
	case Done:
		return "done"
	case Discarded:
		return "discarded"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Driver turns transport exchanges into readings. It owns the transport and
// is stepped by a single caller.
type Driver struct {
	t     Transport
	ref   Reference
	state State
}

func NewDriver(t Transport, ref Reference) *Driver {
	return &Driver{t: t, ref: ref, state: State{Kind: StateInitializing}}
}

func (d *Driver) State() State { return d.state }

func (d *Driver) Reference() Reference { return d.ref }

// Step performs at most one exchange with the transport. The Reading is only
// valid when the outcome is Done.
func (d *Driver) Step() (Outcome, Reading, error) {
	switch d.state.Kind {
	case StateInitializing:
		st, err := d.t.Probe()
		if err != nil {
			return StillInitializing, Reading{}, err
		}
		if st != ProbeReady {
			return StillInitializing, Reading{}, nil
		}
		d.state = State{Kind: StateReady}
		return BecameReady, Reading{}, nil
	case StateReady:
		return Idle, Reading{}, nil
	case StateProbing:
		requested := d.state.Channel
		conv, err := d.t.Poll()
		if err != nil {
			return StillProbing, Reading{}, err
		}
		if conv.Pending {
			return StillProbing, Reading{}, nil
		}
		d.state = State{Kind: StateReady}
		if conv.Channel != requested {
			return Discarded, Reading{}, nil
		}
		return Done, Reading{Channel: conv.Channel, Raw: conv.Code, Voltage: d.ref.ToVolts(conv.Code)}, nil
	}
	return Idle, Reading{}, fmt.Errorf("driver in unknown state %v", d.state.Kind)
}

// RequestChannel starts a conversion on ch. An out of range channel is
// rejected before the transport is touched.
func (d *Driver) RequestChannel(ch Channel) error {
	if !ch.Valid() {
		return &ConfigurationError{Field: "channel", Reason: "channel is not in range from 0 to 7", Value: int(ch)}
	}
	if d.state.Kind != StateReady {
		return fmt.Errorf("request channel %d in state %s: %w", ch, d.state.Kind, ErrNotReady)
	}
	if err := d.t.Start(ch); err != nil {
		return err
	}
	d.state = State{Kind: StateProbing, Channel: ch}
	return nil
}
