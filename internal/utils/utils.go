package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr.
// This ensures we don't lose critical crash information if a child process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

var (
	osExit = os.Exit
	// exit is swapped in tests.
	exit = osExit
)

// Die is the unified exit strategy for roverlink.
// It prints a formatted error box, runs every cleanup (stopping the motors first is the
// caller's job: pass it as the first cleanup) and exits with status 1.
func Die(context string, err error, cleanup ...func()) {
	for _, fn := range cleanup {
		if fn != nil {
			fn()
		}
	}
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 ROVERLINK ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	exit(1)
}

// DumpLogs returns a cleanup that prints whatever s captured on stderr.
func DumpLogs(name string, s *SafeCommand) func() {
	return func() {
		if s != nil && s.Stderr.Len() > 0 {
			fmt.Fprintf(os.Stderr, "\n%s LOGS:\n%s\n", name, s.Stderr.String())
		}
	}
}
