// Package link runs the two ends of the control loop. The rover streams frames and executes
// what comes back; the base watches the frames and decides what to send.
//
// Both ends must agree on the Profile, it is not negotiated on the wire.
package link

import (
	"fmt"

	"github.com/andresmejia3/roverlink/internal/types"
)

// Profile selects what the base sends back for every frame.
type Profile int

const (
	ProfileCommand Profile = iota
	ProfileVelocity
	ProfileCommandVelocity
)

var profileNames = [...]string{
	ProfileCommand:         "command",
	ProfileVelocity:        "velocity",
	ProfileCommandVelocity: "command+velocity",
}

func (p Profile) String() string {
	if p >= 0 && int(p) < len(profileNames) {
		return profileNames[p]
	}
	return fmt.Sprintf("profile(%d)", int(p))
}

func ParseProfile(s string) (Profile, error) {
	for i, name := range profileNames {
		if name == s {
			return Profile(i), nil
		}
	}
	return 0, fmt.Errorf("unknown link profile %q (want command, velocity or command+velocity)", s)
}

// FrameSource yields camera frames. Read returns io.EOF when the source is exhausted.
type FrameSource interface {
	Read() (types.Frame, error)
	Close() error
}
