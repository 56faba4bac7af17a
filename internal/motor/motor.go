// Package motor drives the rover's two DC motors through four PWM channels.
package motor

import (
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"go.bug.st/serial"
)

// Channel is one H-bridge input.
type Channel int

const (
	LeftA Channel = iota
	LeftB
	RightA
	RightB
)

// NumChannels is the number of PWM channels.
const NumChannels = 4

const MaxDuty = 100

func (c Channel) String() string {
	switch c {
	case LeftA:
		return "left-a"
	case LeftB:
		return "left-b"
	case RightA:
		return "right-a"
	case RightB:
		return "right-b"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Driver is the hardware shim. Implementations must accept StopAll at any time.
type Driver interface {
	Init() error
	SetDuty(ch Channel, duty int) error
	StopAll() error
	Close() error
}

// ClampDuty limits d to [0, MaxDuty].
func ClampDuty(d int) int {
	if d < 0 {
		return 0
	}
	if d > MaxDuty {
		return MaxDuty
	}
	return d
}

// SerialDriver talks to a motor controller board over a UART. Each duty update is one ASCII
// line "D<channel> <duty>\n"; "S\n" stops every channel.
type SerialDriver struct {
	mu   sync.Mutex
	port io.WriteCloser
	l    hclog.Logger
}

// OpenSerial opens the controller at device with 8N1 framing.
func OpenSerial(device string, baud int, l hclog.Logger) (*SerialDriver, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open motor controller %s: %w", device, err)
	}
	return NewSerialDriver(port, l), nil
}

// NewSerialDriver wraps an already opened port.
func NewSerialDriver(port io.WriteCloser, l hclog.Logger) *SerialDriver {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &SerialDriver{port: port, l: l}
}

func (d *SerialDriver) Init() error {
	return d.StopAll()
}

func (d *SerialDriver) SetDuty(ch Channel, duty int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("invalid motor channel %d", int(ch))
	}
	return d.write(fmt.Sprintf("D%d %d\n", int(ch), ClampDuty(duty)))
}

func (d *SerialDriver) StopAll() error {
	return d.write("S\n")
}

func (d *SerialDriver) Close() error {
	err := d.StopAll()
	if cerr := d.port.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *SerialDriver) write(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := io.WriteString(d.port, line); err != nil {
		d.l.Error("motor controller write failed", "line", line, "error", err)
		return fmt.Errorf("motor controller write: %w", err)
	}
	return nil
}

// LogDriver is a dry-run driver: it logs and remembers duty values instead of moving anything.
type LogDriver struct {
	mu   sync.Mutex
	duty [NumChannels]int
	l    hclog.Logger
}

func NewLogDriver(l hclog.Logger) *LogDriver {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &LogDriver{l: l}
}

func (d *LogDriver) Init() error {
	d.l.Info("dry-run motor driver ready")
	return nil
}

func (d *LogDriver) SetDuty(ch Channel, duty int) error {
	if ch < 0 || ch >= NumChannels {
		return fmt.Errorf("invalid motor channel %d", int(ch))
	}
	duty = ClampDuty(duty)
	d.mu.Lock()
	d.duty[ch] = duty
	d.mu.Unlock()
	d.l.Trace("set duty", "channel", ch.String(), "duty", duty)
	return nil
}

func (d *LogDriver) StopAll() error {
	d.mu.Lock()
	d.duty = [NumChannels]int{}
	d.mu.Unlock()
	d.l.Debug("all channels stopped")
	return nil
}

func (d *LogDriver) Close() error {
	return d.StopAll()
}

// Duty returns the last value written to every channel.
func (d *LogDriver) Duty() [NumChannels]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duty
}
