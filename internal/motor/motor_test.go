package motor

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	bytes.Buffer
	closed bool
	fail   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.fail {
		return 0, errors.New("device unplugged")
	}
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestClampDuty(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 0}, {0, 0}, {42, 42}, {100, 100}, {250, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampDuty(tt.in), "ClampDuty(%d)", tt.in)
	}
}

func TestSerialDriverLines(t *testing.T) {
	port := &fakePort{}
	d := NewSerialDriver(port, nil)

	require.NoError(t, d.Init())
	require.NoError(t, d.SetDuty(LeftA, 60))
	require.NoError(t, d.SetDuty(RightB, 140))
	require.NoError(t, d.Close())

	assert.Equal(t, "S\nD0 60\nD3 100\nS\n", port.String())
	assert.True(t, port.closed)
}

func TestSerialDriverErrors(t *testing.T) {
	d := NewSerialDriver(&fakePort{fail: true}, nil)
	assert.Error(t, d.SetDuty(LeftB, 10))
	assert.Error(t, NewSerialDriver(&fakePort{}, nil).SetDuty(Channel(7), 10))
}

func TestLogDriverRemembersDuty(t *testing.T) {
	d := NewLogDriver(nil)
	require.NoError(t, d.Init())
	require.NoError(t, d.SetDuty(LeftA, 30))
	require.NoError(t, d.SetDuty(RightA, -1))
	assert.Equal(t, [NumChannels]int{30, 0, 0, 0}, d.Duty())

	require.NoError(t, d.SetDuty(RightA, 80))
	require.NoError(t, d.StopAll())
	assert.Equal(t, [NumChannels]int{}, d.Duty())
}
