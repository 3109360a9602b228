// Package metrics provides capture pipeline metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics contains Prometheus metrics for the capture pipeline.
// A nil *CaptureMetrics is valid and records nothing.
type CaptureMetrics struct {
	registry *prometheus.Registry

	// Device metrics
	framesTotal       *prometheus.CounterVec
	frameBytesTotal   *prometheus.CounterVec
	pollTimeoutsTotal *prometheus.CounterVec
	deviceErrorsTotal *prometheus.CounterVec

	// Encoder metrics
	blocksTotal         *prometheus.CounterVec
	encodeErrorsTotal   *prometheus.CounterVec
	encodeDuration      *prometheus.HistogramVec
	unitsEmittedTotal   *prometheus.CounterVec
	emittedBytesTotal   *prometheus.CounterVec
	lastTimestampMillis *prometheus.GaugeVec

	// Worker state
	workerState *prometheus.GaugeVec
}

// NewCaptureMetrics creates and registers new capture metrics
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *CaptureMetrics) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_frames_total",
			Help: "Total number of frames fetched from the capture device",
		},
		[]string{"source"},
	)

	m.frameBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_frame_bytes_total",
			Help: "Total PCM bytes fetched from the capture device",
		},
		[]string{"source"},
	)

	m.pollTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_poll_timeouts_total",
			Help: "Total number of device polls that returned no frame",
		},
		[]string{"source"},
	)

	m.deviceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_device_errors_total",
			Help: "Total number of capture device errors",
		},
		[]string{"source", "kind"}, // kind: setup, fetch, release, teardown, poll
	)

	m.blocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_blocks_total",
			Help: "Total number of PCM blocks handed to the encoder",
		},
		[]string{"source", "codec"},
	)

	m.encodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_encode_errors_total",
			Help: "Total number of blocks dropped because encoding failed",
		},
		[]string{"source", "codec", "reason"}, // reason: encode, empty
	)

	m.encodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capture_encode_duration_seconds",
			Help:    "Time taken to encode one block",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us to ~100ms
		},
		[]string{"source", "codec"},
	)

	m.unitsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_units_emitted_total",
			Help: "Total number of encoded units handed to the sink",
		},
		[]string{"source", "codec"},
	)

	m.emittedBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_emitted_bytes_total",
			Help: "Total encoded bytes handed to the sink",
		},
		[]string{"source", "codec"},
	)

	m.lastTimestampMillis = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capture_last_timestamp_milliseconds",
			Help: "Timestamp of the most recently emitted unit",
		},
		[]string{"source"},
	)

	m.workerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capture_worker_state",
			Help: "Current capture worker state (0 idle, 1 setup, 2 running, 3 draining, 4 stopped)",
		},
		[]string{"source"},
	)
}

// RecordFrame records one fetched device frame
func (m *CaptureMetrics) RecordFrame(source string, bytes int) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(source).Inc()
	m.frameBytesTotal.WithLabelValues(source).Add(float64(bytes))
}

// RecordPollTimeout records a poll that produced no frame
func (m *CaptureMetrics) RecordPollTimeout(source string) {
	if m == nil {
		return
	}
	m.pollTimeoutsTotal.WithLabelValues(source).Inc()
}

// RecordDeviceError records a device failure of the given kind
func (m *CaptureMetrics) RecordDeviceError(source, kind string) {
	if m == nil {
		return
	}
	m.deviceErrorsTotal.WithLabelValues(source, kind).Inc()
}

// RecordEncode records one encoder invocation and its duration
func (m *CaptureMetrics) RecordEncode(source, codec string, seconds float64) {
	if m == nil {
		return
	}
	m.blocksTotal.WithLabelValues(source, codec).Inc()
	m.encodeDuration.WithLabelValues(source, codec).Observe(seconds)
}

// RecordEncodeError records a block dropped for reason
func (m *CaptureMetrics) RecordEncodeError(source, codec, reason string) {
	if m == nil {
		return
	}
	m.encodeErrorsTotal.WithLabelValues(source, codec, reason).Inc()
}

// RecordEmit records one unit handed to the sink
func (m *CaptureMetrics) RecordEmit(source, codec string, bytes int, timestampMs uint64) {
	if m == nil {
		return
	}
	m.unitsEmittedTotal.WithLabelValues(source, codec).Inc()
	m.emittedBytesTotal.WithLabelValues(source, codec).Add(float64(bytes))
	m.lastTimestampMillis.WithLabelValues(source).Set(float64(timestampMs))
}

// SetWorkerState records the worker state as its ordinal
func (m *CaptureMetrics) SetWorkerState(source string, state int) {
	if m == nil {
		return
	}
	m.workerState.WithLabelValues(source).Set(float64(state))
}

// Describe implements the Collector interface
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.frameBytesTotal.Describe(ch)
	m.pollTimeoutsTotal.Describe(ch)
	m.deviceErrorsTotal.Describe(ch)
	m.blocksTotal.Describe(ch)
	m.encodeErrorsTotal.Describe(ch)
	m.encodeDuration.Describe(ch)
	m.unitsEmittedTotal.Describe(ch)
	m.emittedBytesTotal.Describe(ch)
	m.lastTimestampMillis.Describe(ch)
	m.workerState.Describe(ch)
}

// Collect implements the Collector interface
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.frameBytesTotal.Collect(ch)
	m.pollTimeoutsTotal.Collect(ch)
	m.deviceErrorsTotal.Collect(ch)
	m.blocksTotal.Collect(ch)
	m.encodeErrorsTotal.Collect(ch)
	m.encodeDuration.Collect(ch)
	m.unitsEmittedTotal.Collect(ch)
	m.emittedBytesTotal.Collect(ch)
	m.lastTimestampMillis.Collect(ch)
	m.workerState.Collect(ch)
}
