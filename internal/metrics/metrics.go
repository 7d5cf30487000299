// Package metrics exposes the prometheus counters shared by the relay,
// camera pump and recorder.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	commandsTotal      *prometheus.CounterVec
	forwardsTotal      *prometheus.CounterVec
	forwardDuration    prometheus.Histogram
	observersConnected prometheus.Gauge
	observersEvicted   prometheus.Counter
	bridgeTotal        *prometheus.CounterVec

	framesTotal      *prometheus.CounterVec
	captureFailures  prometheus.Counter
	overlayFailures  prometheus.Counter
	viewersConnected prometheus.Gauge

	sessionsStarted prometheus.Counter
	pointsTotal     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			commandsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_commands_total",
					Help: "Operator messages received by parse result.",
				},
				[]string{"result"},
			),
			forwardsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_vehicle_forwards_total",
					Help: "Vehicle forward attempts by status (ok, error, dropped).",
				},
				[]string{"status"},
			),
			forwardDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "relay_vehicle_forward_duration_seconds",
					Help:    "Duration of vehicle forward attempts.",
					Buckets: prometheus.DefBuckets,
				},
			),
			observersConnected: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "relay_observers_connected",
					Help: "Observer connections currently joined to the broadcast group.",
				},
			),
			observersEvicted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_observers_evicted_total",
					Help: "Observers disconnected because their send buffer was full.",
				},
			),
			bridgeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bus_bridge_publishes_total",
					Help: "Group messages bridged to redis by status (ok, error, dropped).",
				},
				[]string{"status"},
			),
			framesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "camera_frames_total",
					Help: "Frames emitted to viewers by kind (frame, placeholder).",
				},
				[]string{"kind"},
			),
			captureFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "camera_capture_failures_total",
					Help: "Failed camera open or read attempts.",
				},
			),
			overlayFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "camera_overlay_failures_total",
					Help: "Detection overlay failures that fell back to the raw frame.",
				},
			),
			viewersConnected: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "camera_viewers_connected",
					Help: "Open video streams.",
				},
			),
			sessionsStarted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "recorder_sessions_started_total",
					Help: "Trajectory sessions started.",
				},
			),
			pointsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "recorder_points_total",
					Help: "Point writes by result (ok, rejected, error).",
				},
				[]string{"result"},
			),
		}

		prometheus.MustRegister(
			m.commandsTotal,
			m.forwardsTotal,
			m.forwardDuration,
			m.observersConnected,
			m.observersEvicted,
			m.bridgeTotal,
			m.framesTotal,
			m.captureFailures,
			m.overlayFailures,
			m.viewersConnected,
			m.sessionsStarted,
			m.pointsTotal,
		)
		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordCommand(parsed bool) {
	result := "parse_error"
	if parsed {
		result = "ok"
	}
	getMetrics().commandsTotal.WithLabelValues(result).Inc()
}

func RecordForward(status string, duration time.Duration) {
	m := getMetrics()
	m.forwardsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.forwardDuration.Observe(duration.Seconds())
	}
}

func AddObservers(delta int) {
	getMetrics().observersConnected.Add(float64(delta))
}

func RecordObserverEvicted() {
	getMetrics().observersEvicted.Inc()
}

func RecordBridgePublish(status string) {
	getMetrics().bridgeTotal.WithLabelValues(status).Inc()
}

func RecordFrame(placeholder bool) {
	kind := "frame"
	if placeholder {
		kind = "placeholder"
	}
	getMetrics().framesTotal.WithLabelValues(kind).Inc()
}

func RecordCaptureFailure() {
	getMetrics().captureFailures.Inc()
}

func RecordOverlayFailure() {
	getMetrics().overlayFailures.Inc()
}

func AddViewers(delta int) {
	getMetrics().viewersConnected.Add(float64(delta))
}

func RecordSessionStarted() {
	getMetrics().sessionsStarted.Inc()
}

func RecordPoint(result string) {
	getMetrics().pointsTotal.WithLabelValues(result).Inc()
}
