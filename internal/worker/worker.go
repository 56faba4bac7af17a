// Package worker runs symbol inference in an external program. Requests are written to the
// program's stdin; responses come back on a side-channel pipe so its own prints cannot corrupt
// them.
//
// Protocol, both directions: [Length uint32 BE][Body].
// Request body:  TensorSide*TensorSide float32 BE values in [0, 1].
// Response body: int32 BE class, or a UTF-8 error message of any other length up to
// MaxResponseLen.
package worker

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/andresmejia3/roverlink/internal/utils"
)

// MaxResponseLen bounds the length header of a response: a class word or a short error message.
const MaxResponseLen = 64 << 10

type Process struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu sync.Mutex
}

// Start launches name with args. The child finds the response pipe on FD 3.
func Start(name string, args ...string) (*Process, error) {
	cmd := utils.NewSafeCommand(name, args...)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	cmd.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("inference process %s failed to start: %w", name, err)
	}

	// Only the child holds the write end now.
	w.Close()

	return &Process{
		Cmd:      cmd,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one request and waits for its response.
func (p *Process) Communicate(data []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := binary.Write(p.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := p.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(p.DataPipe, header); err != nil {
		return nil, err // the process died; its stderr is in Cmd.Stderr
	}

	n := binary.BigEndian.Uint32(header)
	if n > MaxResponseLen {
		return nil, fmt.Errorf("response length %d exceeds %d bytes", n, MaxResponseLen)
	}
	respBody := make([]byte, n)
	_, err := io.ReadFull(p.DataPipe, respBody)
	return respBody, err
}

// Classify implements detect.Classifier.
func (p *Process) Classify(tensor []float32) (int, error) {
	req := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.BigEndian.PutUint32(req[4*i:], math.Float32bits(v))
	}

	resp, err := p.Communicate(req)
	if err != nil {
		return 0, fmt.Errorf("inference process: %w", err)
	}
	if len(resp) != 4 {
		return 0, fmt.Errorf("inference process error: %s", resp)
	}
	return int(int32(binary.BigEndian.Uint32(resp))), nil
}

// Logs returns what the process wrote to stderr so far.
func (p *Process) Logs() string {
	if p.Cmd == nil {
		return ""
	}
	return p.Cmd.Stderr.String()
}

func (p *Process) Close() error {
	p.Stdin.Close()
	p.DataPipe.Close()
	if p.Cmd == nil {
		return nil
	}
	return p.Cmd.Wait()
}
