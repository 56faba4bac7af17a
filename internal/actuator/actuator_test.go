package actuator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresmejia3/roverlink/internal/motor"
	"github.com/andresmejia3/roverlink/internal/types"
)

// MockDriver records every write and signals each StopAll.
type MockDriver struct {
	mu      sync.Mutex
	duty    [motor.NumChannels]int
	writes  int
	stops   int
	started chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newMockDriver() *MockDriver {
	return &MockDriver{started: make(chan struct{}), stopped: make(chan struct{}, 64)}
}

func (m *MockDriver) Init() error { return nil }

func (m *MockDriver) SetDuty(ch motor.Channel, d int) error {
	m.mu.Lock()
	m.duty[ch] = d
	m.writes++
	m.mu.Unlock()
	m.once.Do(func() { close(m.started) })
	return nil
}

func (m *MockDriver) StopAll() error {
	m.mu.Lock()
	m.duty = [motor.NumChannels]int{}
	m.stops++
	m.mu.Unlock()
	select {
	case m.stopped <- struct{}{}:
	default:
	}
	return nil
}

func (m *MockDriver) Close() error { return m.StopAll() }

func (m *MockDriver) snapshot() ([motor.NumChannels]int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty, m.writes, m.stops
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the actuator")
	}
}

func TestDirectionDuty(t *testing.T) {
	tests := []struct {
		dir  types.Manual
		want [motor.NumChannels]int
	}{
		{types.Forward, [4]int{50, 0, 50, 0}},
		{types.Backward, [4]int{0, 50, 0, 50}},
		{types.RotateLeft, [4]int{50, 0, 0, 50}},
		{types.RotateRight, [4]int{0, 50, 50, 0}},
		{types.ForwardRight, [4]int{50, 0, 0, 0}},
		{types.ForwardLeft, [4]int{0, 0, 50, 0}},
		{types.BackwardRight, [4]int{0, 50, 0, 0}},
		{types.BackwardLeft, [4]int{0, 0, 0, 50}},
		{types.Stop, [4]int{}},
		{types.NoOp, [4]int{}},
		{types.ToggleMode, [4]int{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DirectionDuty(tt.dir, 50), tt.dir.String())
	}
	assert.Equal(t, [4]int{100, 0, 100, 0}, DirectionDuty(types.Forward, 400))
}

func TestLastWriteWins(t *testing.T) {
	drv := newMockDriver()
	var mu sync.Mutex
	var executed []Order
	a := New(drv, nil, Options{OnExecute: func(o Order) {
		mu.Lock()
		executed = append(executed, o)
		mu.Unlock()
	}})

	manual := types.ManualCommand(types.Forward)
	a.Submit(Order{Command: manual, Velocity: types.Velocity{10, 0, 10, 0}, HasVelocity: true})
	a.Submit(Order{Command: manual, Velocity: types.Velocity{0, 70, 0, 70}, HasVelocity: true})
	a.Start()

	waitFor(t, drv.started)
	time.Sleep(50 * time.Millisecond)
	a.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, executed, 1)
	assert.Equal(t, types.Velocity{0, 70, 0, 70}, executed[0].Velocity)
}

func TestManualDirectionWithoutVelocity(t *testing.T) {
	drv := newMockDriver()
	a := New(drv, nil, Options{Duty: 60})
	a.Start()
	defer a.Close()

	a.Submit(Order{Command: types.ManualCommand(types.RotateRight)})
	waitFor(t, drv.started)

	require.Eventually(t, func() bool {
		duty, writes, _ := drv.snapshot()
		return writes == motor.NumChannels && duty == [4]int{0, 60, 60, 0}
	}, time.Second, 5*time.Millisecond)
}

func TestManeuverStopsAfterDuration(t *testing.T) {
	drv := newMockDriver()
	table := Table{types.ForwardPulse: {types.Forward, 30 * time.Millisecond}}
	a := New(drv, table, Options{})
	a.Start()
	defer a.Close()

	a.Submit(Order{Command: types.AutonomousCommand(types.ForwardPulse)})
	waitFor(t, drv.started)
	waitFor(t, drv.stopped)

	duty, _, stops := drv.snapshot()
	assert.Equal(t, [4]int{}, duty)
	assert.Equal(t, 1, stops)
}

func TestUnknownManeuverStops(t *testing.T) {
	drv := newMockDriver()
	a := New(drv, Table{}, Options{})
	a.Start()
	defer a.Close()

	a.Submit(Order{Command: types.AutonomousCommand(types.Turn90Left)})
	waitFor(t, drv.stopped)
	_, writes, _ := drv.snapshot()
	assert.Zero(t, writes)
}

func TestShutdownInterruptsManeuver(t *testing.T) {
	drv := newMockDriver()
	table := Table{types.Turn90Left: {types.RotateLeft, 2 * time.Second}}
	a := New(drv, table, Options{PollInterval: 5 * time.Millisecond})
	a.Start()

	a.Submit(Order{Command: types.AutonomousCommand(types.Turn90Left)})
	waitFor(t, drv.started)

	begin := time.Now()
	a.Close()
	elapsed := time.Since(begin)

	assert.LessOrEqual(t, elapsed, 50*time.Millisecond, "shutdown took %v", elapsed)
	duty, _, stops := drv.snapshot()
	assert.Equal(t, [4]int{}, duty)
	assert.GreaterOrEqual(t, stops, 1)
}

func TestCloseWithoutStartStops(t *testing.T) {
	drv := newMockDriver()
	a := New(drv, nil, Options{})
	a.Close()
	a.Close()
	a.Submit(Order{Command: types.ManualCommand(types.Forward)})

	_, writes, stops := drv.snapshot()
	assert.Zero(t, writes)
	assert.Equal(t, 1, stops)
}
