package link

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"github.com/andresmejia3/roverlink/internal/actuator"
	"github.com/andresmejia3/roverlink/internal/metrics"
	"github.com/andresmejia3/roverlink/internal/transport"
	"github.com/andresmejia3/roverlink/internal/types"
)

// Submitter accepts orders for the drive outputs.
type Submitter interface {
	Submit(o actuator.Order)
}

type RoverOptions struct {
	Profile Profile
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Rover is the onboard end: capture, send, receive, hand off to the actuator.
type Rover struct {
	codec   *transport.Codec
	src     FrameSource
	act     Submitter
	profile Profile
	m       *metrics.Metrics
	l       hclog.Logger
}

func NewRover(codec *transport.Codec, src FrameSource, act Submitter, opts RoverOptions) *Rover {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Rover{
		codec:   codec,
		src:     src,
		act:     act,
		profile: opts.Profile,
		m:       opts.Metrics,
		l:       opts.Logger,
	}
}

// Run loops until the frame source ends, the base disconnects or ctx is cancelled, all of
// which return nil. Any other failure is returned; stopping the motors is the caller's job.
// A reply cut short by the receive timeout is ErrProtocol and is returned too.
func (r *Rover) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.codec.Channel().Close() })
	defer stop()

	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		f, err := r.src.Read()
		if errors.Is(err, io.EOF) {
			r.l.Info("frame source ended", "frames", frames)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		n, err := r.codec.SendFrameCompressed(f)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send frame: %w", err)
		}
		frames++
		r.m.FrameSent(n)

		order, err := r.receive()
		switch {
		case err == nil:
			r.act.Submit(order)
		case transport.IsTimeout(err):
			r.m.ShortRead("timeout")
			r.l.Debug("no command this cycle", "frame", frames)
		case transport.IsPeerClosed(err):
			r.m.ShortRead("peer_closed")
			r.l.Info("base closed the connection", "frames", frames)
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("receive %s: %w", r.profile, err)
		}
	}
}

func (r *Rover) receive() (actuator.Order, error) {
	switch r.profile {
	case ProfileVelocity:
		v, err := r.codec.ReceiveVelocity()
		if err != nil {
			return actuator.Order{}, err
		}
		return actuator.Order{Command: types.ManualCommand(types.NoOp), Velocity: v, HasVelocity: true}, nil

	case ProfileCommandVelocity:
		cmd, v, err := r.codec.ReceiveCommandVelocity()
		if err != nil {
			return actuator.Order{}, err
		}
		// Autonomous maneuvers are timed by the actuator; the velocity is informational.
		return actuator.Order{Command: cmd, Velocity: v, HasVelocity: cmd.Kind == types.KindManual}, nil

	default:
		cmd, err := r.codec.ReceiveCommand()
		if err != nil {
			return actuator.Order{}, err
		}
		return actuator.Order{Command: cmd}, nil
	}
}
