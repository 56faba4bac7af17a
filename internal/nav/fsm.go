// Package nav is the autonomous navigation state machine: drive until the target is centered,
// settle, read the symbol on it, execute the matching maneuver, cool down, repeat.
package nav

import (
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/roverlink/internal/detect"
	"github.com/andresmejia3/roverlink/internal/types"
)

// ErrLogic is returned when the machine finds itself in a state it does not model.
var ErrLogic = errors.New("navigation logic error")

type State int

const (
	Search State = iota
	Focus
	Identify
	Finish
)

func (s State) String() string {
	switch s {
	case Search:
		return "search"
	case Focus:
		return "focus"
	case Identify:
		return "identify"
	case Finish:
		return "finish"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the dwell timers, the target gating and the symbol decision table.
type Config struct {
	Settle   time.Duration
	Cooldown time.Duration
	// CenterBand is the maximum horizontal distance in pixels between the match and the frame
	// center for the target to count as centered.
	CenterBand int
	// MinScale is the smallest template scale at which the target is close enough.
	MinScale float64
	Symbols  map[int]types.Maneuver
	// Fallback is used for classes missing from Symbols and when no symbol could be read.
	Fallback types.Maneuver
}

// DefaultSymbols maps classifier outputs to maneuvers.
func DefaultSymbols() map[int]types.Maneuver {
	return map[int]types.Maneuver{
		0: types.AutoStop,
		1: types.Turn90Left,
		2: types.Turn90Right,
		3: types.Turn180Left,
		4: types.Turn180Right,
		5: types.ForwardPulse,
	}
}

func DefaultConfig() Config {
	return Config{
		Settle:     2 * time.Second,
		Cooldown:   2 * time.Second,
		CenterBand: 40,
		MinScale:   0.12,
		Symbols:    DefaultSymbols(),
		Fallback:   types.AutoStop,
	}
}

// Observation is what one frame tells the machine.
type Observation struct {
	Detected  bool
	Centered  bool
	Close     bool
	Symbol    int
	HasSymbol bool
}

// Target reports an actionable, centered and close match.
func (o Observation) Target() bool {
	return o.Detected && o.Centered && o.Close
}

// Observe derives an Observation from a detection on a frame frameCols pixels wide.
func Observe(det detect.Detection, frameCols int, cfg Config) Observation {
	dx := det.Position.X - frameCols/2
	if dx < 0 {
		dx = -dx
	}
	return Observation{
		Detected: det.Actionable,
		Centered: dx <= cfg.CenterBand,
		Close:    det.Scale >= cfg.MinScale,
	}
}

// Transition describes one state change.
type Transition struct {
	From     State
	To       State
	At       time.Time
	Maneuver types.Maneuver
}

// Option configures an FSM.
type Option func(*FSM)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *FSM) { f.now = now }
}

// WithTransitionHook registers fn to be called on every state change.
func WithTransitionHook(fn func(Transition)) Option {
	return func(f *FSM) { f.onTransition = fn }
}

// FSM is not safe for concurrent use; the control loop owns it.
type FSM struct {
	cfg          Config
	state        State
	dwellStart   time.Time
	now          func() time.Time
	onTransition func(Transition)
}

func New(cfg Config, opts ...Option) *FSM {
	f := &FSM{cfg: cfg, state: Search, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	f.dwellStart = f.now()
	return f
}

// State returns the current state.
func (f *FSM) State() State {
	return f.state
}

// Config returns the machine's configuration.
func (f *FSM) Config() Config {
	return f.cfg
}

// Reset returns to Search and restarts the dwell timer. It does not notify the transition hook.
func (f *FSM) Reset() {
	f.state = Search
	f.dwellStart = f.now()
}

// NeedsSymbol reports whether the next Step consumes a classified symbol.
func (f *FSM) NeedsSymbol() bool {
	return f.state == Identify
}

// Step advances the machine by one frame and returns the maneuver to execute.
func (f *FSM) Step(obs Observation) (types.Maneuver, error) {
	now := f.now()

	switch f.state {
	case Search:
		if obs.Target() {
			f.enter(Focus, now, types.Halt)
			return types.Halt, nil
		}
		return types.Cruise, nil

	case Focus:
		// Losing the target here does not send the rover back to Search.
		if now.Sub(f.dwellStart) > f.cfg.Settle && obs.Target() {
			f.enter(Identify, now, types.Halt)
		}
		return types.Halt, nil

	case Identify:
		m := f.decide(obs)
		f.enter(Finish, now, m)
		return m, nil

	case Finish:
		if now.Sub(f.dwellStart) > f.cfg.Cooldown {
			f.enter(Search, now, types.Halt)
		}
		return types.Halt, nil

	default:
		bad := f.state
		f.enter(Search, now, types.Halt)
		return types.Halt, fmt.Errorf("%w: unknown state %v, reset to %v", ErrLogic, bad, Search)
	}
}

func (f *FSM) decide(obs Observation) types.Maneuver {
	if !obs.HasSymbol {
		return f.cfg.Fallback
	}
	if m, ok := f.cfg.Symbols[obs.Symbol]; ok {
		return m
	}
	return f.cfg.Fallback
}

func (f *FSM) enter(s State, now time.Time, m types.Maneuver) {
	from := f.state
	f.state = s
	f.dwellStart = now
	if f.onTransition != nil {
		f.onTransition(Transition{From: from, To: s, At: now, Maneuver: m})
	}
}
