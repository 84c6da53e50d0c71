package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as the "reason" label of FramesDropped.
const (
	DropInactive   = "inactive"
	DropOverflow   = "overflow"
	DropTerminated = "terminated"
	// DropDeliveryFailed marks the frame whose write failed.
	DropDeliveryFailed = "delivery_failed"
)

// Metrics groups the Prometheus instruments of the output devices.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveDevices  prometheus.Gauge
	QueuedFrames   prometheus.Gauge
	FramesEnqueued *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	EncodingErrors *prometheus.CounterVec
	DeliveryErrors prometheus.Counter
	QueueWait      prometheus.Histogram
}

// New registers the instruments with reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ActiveDevices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_output_devices",
			Help:      "Number of output devices with a running sender loop.",
		}),
		QueuedFrames: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_frames",
			Help:      "Frames waiting in delivery queues.",
		}),
		FramesEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_enqueued_total",
			Help:      "Frames accepted into a delivery queue by type.",
		}, []string{"type"}),
		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the connection by type.",
		}, []string{"type"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by type and reason.",
		}, []string{"type", "reason"}),
		EncodingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_errors_total",
			Help:      "Audio chunks rejected by the encoder.",
		}, []string{"encoding"}),
		DeliveryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Sender loops stopped by a connection write failure.",
		}),
		QueueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_ms",
			Help:      "Time a frame spent queued before it was sent, in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

func (m *Metrics) DeviceStarted() {
	if m == nil {
		return
	}
	m.ActiveDevices.Inc()
}

func (m *Metrics) DeviceStopped() {
	if m == nil {
		return
	}
	m.ActiveDevices.Dec()
}

func (m *Metrics) Enqueued(frameType string) {
	if m == nil {
		return
	}
	m.FramesEnqueued.WithLabelValues(frameType).Inc()
	m.QueuedFrames.Inc()
}

func (m *Metrics) Sent(frameType string, queued time.Duration) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(frameType).Inc()
	m.QueuedFrames.Dec()
	m.QueueWait.Observe(float64(queued.Milliseconds()))
}

// Dropped records a frame that never reached the connection. wasQueued
// tells whether it had been counted in QueuedFrames.
func (m *Metrics) Dropped(frameType, reason string, wasQueued bool) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(frameType, reason).Inc()
	if wasQueued {
		m.QueuedFrames.Dec()
	}
}

func (m *Metrics) EncodingError(encoding string) {
	if m == nil {
		return
	}
	m.EncodingErrors.WithLabelValues(encoding).Inc()
}

func (m *Metrics) DeliveryError() {
	if m == nil {
		return
	}
	m.DeliveryErrors.Inc()
}

// Handler serves the metrics gathered by g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
