package worker

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockProcess(response []byte) (*Process, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(response)))
	dataPipeMock.Write(response)

	// Cmd is nil because we aren't testing process management, just the protocol
	return &Process{Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock
}

func TestClassify(t *testing.T) {
	resp := make([]byte, 4)
	binary.BigEndian.PutUint32(resp, 3)
	p, stdin := newMockProcess(resp)

	tensor := make([]float32, 28*28)
	tensor[0] = 0.5
	tensor[len(tensor)-1] = 1

	class, err := p.Classify(tensor)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if class != 3 {
		t.Errorf("Expected class 3, got %d", class)
	}

	// Verify the request: 4 bytes header + 4 bytes per value
	sent := stdin.Bytes()
	if len(sent) != 4+4*len(tensor) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+4*len(tensor), len(sent))
	}
	if n := binary.BigEndian.Uint32(sent[:4]); n != uint32(4*len(tensor)) {
		t.Errorf("Expected length header %d, got %d", 4*len(tensor), n)
	}
	first := math.Float32frombits(binary.BigEndian.Uint32(sent[4:8]))
	if math.Abs(float64(first)-0.5) > 1e-9 {
		t.Errorf("Expected tensor[0] = 0.5, got %f", first)
	}
	last := math.Float32frombits(binary.BigEndian.Uint32(sent[len(sent)-4:]))
	if last != 1 {
		t.Errorf("Expected last value 1, got %f", last)
	}
}

func TestClassify_NegativeClass(t *testing.T) {
	resp := make([]byte, 4)
	binary.BigEndian.PutUint32(resp, uint32(0xFFFFFFFF))
	p, _ := newMockProcess(resp)

	class, err := p.Classify(make([]float32, 4))
	if err != nil {
		t.Fatal(err)
	}
	if class != -1 {
		t.Errorf("Expected class -1, got %d", class)
	}
}

func TestClassify_Error(t *testing.T) {
	errMsg := "model file not found"
	p, _ := newMockProcess([]byte(errMsg))

	_, err := p.Classify(make([]float32, 4))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "inference process error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "inference process error: "+errMsg, err)
	}
}

func TestClassify_OversizedResponse(t *testing.T) {
	dataPipe := &MockCloser{Buffer: new(bytes.Buffer)}
	binary.Write(dataPipe, binary.BigEndian, uint32(0xFFFFFFF0))
	p := &Process{Stdin: &MockCloser{Buffer: new(bytes.Buffer)}, DataPipe: dataPipe}

	_, err := p.Classify(make([]float32, 4))
	if err == nil {
		t.Fatal("Expected error for a length header above MaxResponseLen")
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("Expected a length error, got '%v'", err)
	}
}

func TestClassify_ProcessDied(t *testing.T) {
	p := &Process{
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: &MockCloser{Buffer: new(bytes.Buffer)},
	}
	if _, err := p.Classify(make([]float32, 4)); err == nil {
		t.Fatal("Expected error when the response pipe is empty")
	}
}

func TestStartMissingBinary(t *testing.T) {
	if _, err := Start("/nonexistent/inference-binary"); err == nil {
		t.Fatal("Expected start error for a missing binary")
	}
}
