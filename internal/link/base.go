package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/andresmejia3/roverlink/internal/actuator"
	"github.com/andresmejia3/roverlink/internal/detect"
	"github.com/andresmejia3/roverlink/internal/metrics"
	"github.com/andresmejia3/roverlink/internal/nav"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/types"
)

// Mode is who drives: the navigation state machine or the operator.
type Mode int

const (
	Autonomous Mode = iota
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "autonomous"
}

// Detector finds the target in a frame.
type Detector interface {
	Detect(f types.Frame) (detect.Detection, error)
}

// Report describes one handled frame.
type Report struct {
	Frame     int
	Mode      Mode
	Command   types.Command
	Detection detect.Detection
	State     nav.State
}

type BaseOptions struct {
	Profile Profile
	Mode    Mode
	// Duty and Table turn commands into velocities for the velocity profiles.
	Duty     int
	Table    actuator.Table
	Logger   hclog.Logger
	Metrics  *metrics.Metrics
	OnReport func(Report)
}

// Base is the decision end: receive a frame, decide, send.
type Base struct {
	codec *transport.Codec
	det   Detector
	fsm   *nav.FSM
	cls   detect.Classifier
	input InputSource

	profile Profile
	mode    Mode
	duty    int
	table   actuator.Table
	report  func(Report)
	m       *metrics.Metrics
	l       hclog.Logger
}

// NewBase wires the loop. cls and input may be nil: without a classifier every symbol falls
// back to the default maneuver, without input the base stays in its initial mode.
func NewBase(codec *transport.Codec, det Detector, fsm *nav.FSM, cls detect.Classifier, input InputSource, opts BaseOptions) *Base {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Duty <= 0 {
		opts.Duty = actuator.DefaultDuty
	}
	if opts.Table == nil {
		opts.Table = actuator.DefaultTable()
	}
	return &Base{
		codec:   codec,
		det:     det,
		fsm:     fsm,
		cls:     cls,
		input:   input,
		profile: opts.Profile,
		mode:    opts.Mode,
		duty:    opts.Duty,
		table:   opts.Table,
		report:  opts.OnReport,
		m:       opts.Metrics,
		l:       opts.Logger,
	}
}

// Mode returns the current driving mode.
func (b *Base) Mode() Mode {
	return b.mode
}

// Run loops until the rover disconnects or ctx is cancelled, both of which return nil.
// A frame cut short by the receive timeout is ErrProtocol and ends the loop with an error.
func (b *Base) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { b.codec.Channel().Close() })
	defer stop()

	frames := 0
	for {
		f, err := b.codec.ReceiveFrameCompressed()
		var cmd types.Command
		var det detect.Detection

		switch {
		case err == nil:
			frames++
			b.m.FrameReceived()
			cmd, det = b.decide(f)
		case transport.IsTimeout(err):
			b.m.ShortRead("timeout")
			b.l.Debug("no frame this cycle")
			continue
		case transport.IsPeerClosed(err):
			b.m.ShortRead("peer_closed")
			b.l.Info("rover closed the connection", "frames", frames)
			return nil
		case errors.Is(err, transport.ErrBadFrame):
			// The rover still waits for an answer.
			b.l.Warn("dropping undecodable frame", "error", err)
			cmd = b.stopCommand()
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("receive frame: %w", err)
		}

		if err := b.send(cmd); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send %s: %w", cmd, err)
		}
		b.m.CommandSent(cmd.String())

		if b.report != nil {
			b.report(Report{Frame: frames, Mode: b.mode, Command: cmd, Detection: det, State: b.fsm.State()})
		}
	}
}

func (b *Base) decide(f types.Frame) (types.Command, detect.Detection) {
	if b.input != nil {
		pad, toggle := b.input.Poll()
		if toggle {
			b.toggle()
			return types.ManualCommand(types.Stop), detect.Detection{}
		}
		if b.mode == Manual {
			return types.ManualCommand(pad), detect.Detection{}
		}
	}
	if b.mode == Manual {
		return types.ManualCommand(types.Stop), detect.Detection{}
	}

	m, det := b.navigate(f)
	return types.AutonomousCommand(m), det
}

func (b *Base) toggle() {
	if b.mode == Manual {
		b.mode = Autonomous
		b.fsm.Reset()
	} else {
		b.mode = Manual
	}
	b.l.Info("mode changed", "mode", b.mode.String())
}

func (b *Base) navigate(f types.Frame) (types.Maneuver, detect.Detection) {
	start := time.Now()
	det, err := b.det.Detect(f)
	if err != nil {
		b.l.Warn("detection failed", "error", err)
		det = detect.Detection{}
	}
	b.m.Detection(det.Confidence, time.Since(start))

	obs := nav.Observe(det, f.Cols, b.fsm.Config())
	if b.fsm.NeedsSymbol() && det.Actionable && b.cls != nil {
		if class, err := b.classify(f, det); err != nil {
			b.l.Warn("symbol classification failed", "error", err)
		} else {
			obs.Symbol, obs.HasSymbol = class, true
			b.l.Info("symbol read", "class", class)
		}
	}

	m, err := b.fsm.Step(obs)
	if err != nil {
		b.l.Error("navigation reset", "error", err)
	}
	return m, det
}

func (b *Base) classify(f types.Frame, det detect.Detection) (int, error) {
	tensor, err := detect.DigitTensor(f, det.Rect())
	if err != nil {
		return 0, err
	}
	return b.cls.Classify(tensor)
}

func (b *Base) stopCommand() types.Command {
	if b.mode == Manual {
		return types.ManualCommand(types.Stop)
	}
	return types.AutonomousCommand(types.Halt)
}

func (b *Base) send(cmd types.Command) error {
	switch b.profile {
	case ProfileVelocity:
		return b.codec.SendVelocity(b.velocity(cmd))
	case ProfileCommandVelocity:
		if err := b.codec.SendCommand(cmd); err != nil {
			return err
		}
		return b.codec.SendVelocity(b.velocity(cmd))
	default:
		return b.codec.SendCommand(cmd)
	}
}

// velocity is the per-channel duty that realizes cmd.
func (b *Base) velocity(cmd types.Command) types.Velocity {
	dir := cmd.Manual
	if cmd.Kind == types.KindAutonomous {
		dir = types.Stop
		if step, ok := b.table[cmd.Maneuver]; ok {
			dir = step.Direction
		}
	}
	var v types.Velocity
	for i, d := range actuator.DirectionDuty(dir, b.duty) {
		v[i] = int32(d)
	}
	return v
}
