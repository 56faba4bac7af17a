// Package metrics exposes the control loop's counters to Prometheus. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roverlink"

type Metrics struct {
	registry *prometheus.Registry

	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	frameBytes     prometheus.Histogram
	shortReads     *prometheus.CounterVec // reason: timeout, peer_closed
	commands       *prometheus.CounterVec // command
	executed       *prometheus.CounterVec // command
	transitions    *prometheus.CounterVec // from, to
	navState       prometheus.Gauge
	score          prometheus.Gauge
	detectDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames sent by the rover",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames received by the base",
		}),
		frameBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "frame_bytes",
			Help:      "Compressed frame size",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10), // 1 KiB to 512 KiB
		}),
		shortReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "short_reads_total",
			Help:      "Receives that returned fewer bytes than requested",
		}, []string{"reason"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "commands_total",
			Help:      "Commands sent by the base",
		}, []string{"command"}),
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actuator",
			Name:      "orders_total",
			Help:      "Orders executed by the actuator",
		}, []string{"command"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "transitions_total",
			Help:      "Navigation state changes",
		}, []string{"from", "to"}),
		navState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "state",
			Help:      "Current navigation state (0 search, 1 focus, 2 identify, 3 finish)",
		}),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "score",
			Help:      "Best correlation score of the last frame",
		}),
		detectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "duration_seconds",
			Help:      "Multi-scale detection time per frame",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}

	m.registry.MustRegister(
		m.framesSent, m.framesReceived, m.frameBytes, m.shortReads, m.commands,
		m.executed, m.transitions, m.navState, m.score, m.detectDuration,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FrameSent(size int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.frameBytes.Observe(float64(size))
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) ShortRead(reason string) {
	if m == nil {
		return
	}
	m.shortReads.WithLabelValues(reason).Inc()
}

func (m *Metrics) CommandSent(cmd string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(cmd).Inc()
}

func (m *Metrics) OrderExecuted(cmd string) {
	if m == nil {
		return
	}
	m.executed.WithLabelValues(cmd).Inc()
}

func (m *Metrics) Transition(from, to string, state int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.navState.Set(float64(state))
}

func (m *Metrics) Detection(score float64, took time.Duration) {
	if m == nil {
		return
	}
	m.score.Set(score)
	m.detectDuration.Observe(took.Seconds())
}

// Serve exposes /metrics and /health on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, l hclog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	l.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
