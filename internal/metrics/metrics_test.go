package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameSent(10)
	m.FrameReceived()
	m.ShortRead("timeout")
	m.CommandSent("auto:cruise")
	m.OrderExecuted("auto:cruise")
	m.Transition("search", "focus", 1)
	m.Detection(0.5, time.Millisecond)
}

func TestCounters(t *testing.T) {
	m := New()
	m.FrameSent(2048)
	m.FrameSent(4096)
	m.ShortRead("timeout")
	m.ShortRead("timeout")
	m.ShortRead("peer_closed")
	m.Transition("search", "focus", 1)
	m.Detection(0.75, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.shortReads.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.shortReads.WithLabelValues("peer_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.navState))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.score))

	expected := `
# HELP roverlink_nav_transitions_total Navigation state changes
# TYPE roverlink_nav_transitions_total counter
roverlink_nav_transitions_total{from="search",to="focus"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "roverlink_nav_transitions_total"))
}
