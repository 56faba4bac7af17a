package types

import "fmt"

// Kind tags which variant a Command carries.
type Kind uint8

const (
	KindManual Kind = iota + 1
	KindAutonomous
)

func (k Kind) String() string {
	switch k {
	case KindManual:
		return "manual"
	case KindAutonomous:
		return "autonomous"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Manual is a directional intent issued by an operator.
type Manual uint8

const (
	Forward Manual = iota
	Backward
	ForwardRight
	ForwardLeft
	BackwardRight
	BackwardLeft
	RotateLeft
	RotateRight
	Stop
	NoOp
	ToggleMode
)

var manualNames = [...]string{
	Forward:       "forward",
	Backward:      "backward",
	ForwardRight:  "forward-right",
	ForwardLeft:   "forward-left",
	BackwardRight: "backward-right",
	BackwardLeft:  "backward-left",
	RotateLeft:    "rotate-left",
	RotateRight:   "rotate-right",
	Stop:          "stop",
	NoOp:          "no-op",
	ToggleMode:    "toggle-mode",
}

func (m Manual) String() string {
	if int(m) < len(manualNames) {
		return manualNames[m]
	}
	return fmt.Sprintf("manual(%d)", uint8(m))
}

// ParseManual resolves a manual direction by its String form.
func ParseManual(s string) (Manual, error) {
	for i, name := range manualNames {
		if name == s {
			return Manual(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Maneuver is an intent produced by autonomous navigation.
type Maneuver uint8

const (
	Cruise Maneuver = iota
	Halt
	Turn180Left
	Turn180Right
	ForwardPulse
	Turn90Left
	Turn90Right
	AutoStop
)

var maneuverNames = [...]string{
	Cruise:       "cruise",
	Halt:         "halt",
	Turn180Left:  "turn-180-left",
	Turn180Right: "turn-180-right",
	ForwardPulse: "forward-pulse",
	Turn90Left:   "turn-90-left",
	Turn90Right:  "turn-90-right",
	AutoStop:     "auto-stop",
}

func (m Maneuver) String() string {
	if int(m) < len(maneuverNames) {
		return maneuverNames[m]
	}
	return fmt.Sprintf("maneuver(%d)", uint8(m))
}

// ParseManeuver resolves a maneuver by its String form.
func ParseManeuver(s string) (Maneuver, error) {
	for i, name := range maneuverNames {
		if name == s {
			return Maneuver(i), nil
		}
	}
	return 0, fmt.Errorf("unknown maneuver %q", s)
}

// Command is either a Manual or an Autonomous intent. Use the constructors; the zero value is
// invalid.
type Command struct {
	Kind     Kind
	Manual   Manual
	Maneuver Maneuver
}

func ManualCommand(m Manual) Command {
	return Command{Kind: KindManual, Manual: m}
}

func AutonomousCommand(m Maneuver) Command {
	return Command{Kind: KindAutonomous, Maneuver: m}
}

func (c Command) String() string {
	switch c.Kind {
	case KindManual:
		return "manual:" + c.Manual.String()
	case KindAutonomous:
		return "auto:" + c.Maneuver.String()
	default:
		return "invalid"
	}
}

// Encode packs the command into one wire word: tag in the high byte, variant in the low byte.
func (c Command) Encode() uint32 {
	var v uint8
	if c.Kind == KindAutonomous {
		v = uint8(c.Maneuver)
	} else {
		v = uint8(c.Manual)
	}
	return uint32(c.Kind)<<24 | uint32(v)
}

// DecodeCommand is the inverse of Encode. Unknown tags or variants are rejected.
func DecodeCommand(w uint32) (Command, error) {
	kind := Kind(w >> 24)
	if w&0x00FFFF00 != 0 {
		return Command{}, fmt.Errorf("malformed command word %#08x", w)
	}
	v := uint8(w)
	switch kind {
	case KindManual:
		if int(v) >= len(manualNames) {
			return Command{}, fmt.Errorf("unknown manual command %d", v)
		}
		return ManualCommand(Manual(v)), nil
	case KindAutonomous:
		if int(v) >= len(maneuverNames) {
			return Command{}, fmt.Errorf("unknown maneuver %d", v)
		}
		return AutonomousCommand(Maneuver(v)), nil
	default:
		return Command{}, fmt.Errorf("unknown command kind %d", uint8(kind))
	}
}
