// Package actuator owns the drive outputs. A single goroutine waits for the latest Order and
// executes it: velocities and manual directions are written at once, autonomous maneuvers are
// driven for a fixed duration and followed by an explicit stop.
package actuator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/andresmejia3/roverlink/internal/motor"
	"github.com/andresmejia3/roverlink/internal/types"
)

const (
	DefaultPollInterval = 5 * time.Millisecond
	DefaultDuty         = 80
)

// Order is one hand-off from the control loop.
type Order struct {
	Command     types.Command
	Velocity    types.Velocity
	HasVelocity bool
}

// Step is a (direction, duration) pair for a timed maneuver.
type Step struct {
	Direction types.Manual
	Duration  time.Duration
}

// Table maps autonomous maneuvers to the step that performs them.
type Table map[types.Maneuver]Step

func DefaultTable() Table {
	return Table{
		types.Cruise:       {types.Forward, 200 * time.Millisecond},
		types.Halt:         {types.Stop, 100 * time.Millisecond},
		types.Turn180Left:  {types.RotateLeft, 900 * time.Millisecond},
		types.Turn180Right: {types.RotateRight, 900 * time.Millisecond},
		types.Turn90Left:   {types.RotateLeft, 500 * time.Millisecond},
		types.Turn90Right:  {types.RotateRight, 500 * time.Millisecond},
		types.ForwardPulse: {types.Forward, 1500 * time.Millisecond},
		types.AutoStop:     {types.Stop, 1500 * time.Millisecond},
	}
}

// DirectionDuty returns the duty of each channel (left A/B, right A/B) for a manual direction.
// Diagonals drive a single motor.
func DirectionDuty(m types.Manual, d int) [motor.NumChannels]int {
	d = motor.ClampDuty(d)
	switch m {
	case types.Forward:
		return [motor.NumChannels]int{d, 0, d, 0}
	case types.Backward:
		return [motor.NumChannels]int{0, d, 0, d}
	case types.RotateLeft:
		return [motor.NumChannels]int{d, 0, 0, d}
	case types.RotateRight:
		return [motor.NumChannels]int{0, d, d, 0}
	case types.ForwardRight:
		return [motor.NumChannels]int{d, 0, 0, 0}
	case types.ForwardLeft:
		return [motor.NumChannels]int{0, 0, d, 0}
	case types.BackwardRight:
		return [motor.NumChannels]int{0, d, 0, 0}
	case types.BackwardLeft:
		return [motor.NumChannels]int{0, 0, 0, d}
	default:
		return [motor.NumChannels]int{}
	}
}

type Options struct {
	PollInterval time.Duration
	Duty         int
	Logger       hclog.Logger
	// OnExecute, if set, is called from the actuator goroutine before each order runs.
	OnExecute func(Order)
}

// Actuator is the only writer of the motor driver once started.
type Actuator struct {
	driver motor.Driver
	table  Table
	poll   time.Duration
	duty   int
	hook   func(Order)
	l      hclog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending *Order
	closed  bool
	started bool

	shutdown atomic.Bool
	done     chan struct{}
}

func New(driver motor.Driver, table Table, opts Options) *Actuator {
	if table == nil {
		table = DefaultTable()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Duty <= 0 {
		opts.Duty = DefaultDuty
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	a := &Actuator{
		driver: driver,
		table:  table,
		poll:   opts.PollInterval,
		duty:   motor.ClampDuty(opts.Duty),
		hook:   opts.OnExecute,
		l:      opts.Logger,
		done:   make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Start launches the actuator goroutine. Calling it twice is a no-op.
func (a *Actuator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true
	go a.run()
}

// Submit replaces the pending order and wakes the actuator. An order submitted while a maneuver
// is running is picked up when it finishes; only the latest one survives.
func (a *Actuator) Submit(o Order) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.pending != nil {
		a.l.Trace("pending order overwritten", "old", a.pending.Command.String(), "new", o.Command.String())
	}
	a.pending = &o
	a.cond.Signal()
}

// Close stops the actuator, waits for its goroutine and leaves every channel stopped.
func (a *Actuator) Close() {
	a.shutdown.Store(true)

	a.mu.Lock()
	alreadyClosed := a.closed
	a.closed = true
	started := a.started
	a.cond.Broadcast()
	a.mu.Unlock()

	if started {
		<-a.done
		return
	}
	if !alreadyClosed {
		a.stop()
	}
}

func (a *Actuator) run() {
	defer close(a.done)
	defer a.stop()

	for {
		o, ok := a.next()
		if !ok {
			return
		}
		if a.hook != nil {
			a.hook(o)
		}
		a.execute(o)
	}
}

func (a *Actuator) next() (Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.pending == nil && !a.closed {
		a.cond.Wait()
	}
	if a.closed {
		return Order{}, false
	}
	o := *a.pending
	a.pending = nil
	return o, true
}

func (a *Actuator) execute(o Order) {
	switch o.Command.Kind {
	case types.KindManual:
		if o.HasVelocity {
			a.writeVelocity(o.Velocity)
			return
		}
		a.write(DirectionDuty(o.Command.Manual, a.duty))
	case types.KindAutonomous:
		a.maneuver(o.Command.Maneuver)
	default:
		a.l.Warn("ignoring order with unknown kind", "command", o.Command.String())
	}
}

func (a *Actuator) maneuver(m types.Maneuver) {
	step, ok := a.table[m]
	if !ok {
		a.l.Warn("no table entry for maneuver, stopping", "maneuver", m.String())
		a.stop()
		return
	}

	a.l.Debug("maneuver", "maneuver", m.String(), "direction", step.Direction.String(), "duration", step.Duration)
	a.write(DirectionDuty(step.Direction, a.duty))

	deadline := time.Now().Add(step.Duration)
	for time.Now().Before(deadline) {
		if a.shutdown.Load() {
			a.l.Debug("maneuver aborted by shutdown", "maneuver", m.String())
			break
		}
		time.Sleep(a.poll)
	}
	a.stop()
}

func (a *Actuator) writeVelocity(v types.Velocity) {
	var duty [motor.NumChannels]int
	for i := range duty {
		duty[i] = int(v[i])
	}
	a.write(duty)
}

func (a *Actuator) write(duty [motor.NumChannels]int) {
	for ch, d := range duty {
		if err := a.driver.SetDuty(motor.Channel(ch), d); err != nil {
			a.l.Error("failed to set duty", "channel", motor.Channel(ch).String(), "error", err)
		}
	}
}

func (a *Actuator) stop() {
	if err := a.driver.StopAll(); err != nil {
		a.l.Error("failed to stop motors", "error", err)
	}
}
