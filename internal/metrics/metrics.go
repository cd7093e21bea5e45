// Package metrics provides Prometheus metrics for capture, discovery and streaming.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "micnode"

// Connection state values exported by the connection_state gauge.
const (
	ConnectionDisconnected = 0
	ConnectionConnecting   = 1
	ConnectionConnected    = 2
)

var (
	captureRecording = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "recording",
		Help:      "1 while the microphone is recording",
	})

	captureSampleRate = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "sample_rate_hz",
		Help:      "Sample rate of the selected recording device",
	})

	captureSamples = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "samples_total",
		Help:      "Samples extracted from the recording device",
	})

	captureArmTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "arm_timeouts_total",
		Help:      "Recording starts abandoned because the device produced no samples",
	})

	discoveryState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "connection_state",
		Help:      "0 disconnected, 1 connecting, 2 connected",
	})

	discoveryRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "connect_requests_total",
		Help:      "Connect requests broadcast",
	})

	discoveryResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "connect_responses_total",
		Help:      "Connect responses by outcome",
	}, []string{"result"})

	senderDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "datagrams_total",
		Help:      "Audio datagrams sent",
	})

	senderBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "bytes_total",
		Help:      "Audio payload bytes sent",
	})

	senderTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "truncated_datagrams_total",
		Help:      "Audio windows cut to the datagram size limit",
	})

	transportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_errors_total",
		Help:      "UDP send and receive failures",
	}, []string{"component", "op"})

	// Local copy of the counters for the status feed.
	counters   Counters
	countersMu sync.RWMutex
)

// Response outcomes for IncConnectResponses.
const (
	ResponseAccepted  = "accepted"
	ResponseRejected  = "rejected"
	ResponseMalformed = "malformed"
)

// Counters holds the current metric values for the status feed.
type Counters struct {
	Recording        bool   `json:"recording"`
	SampleRate       int    `json:"sample_rate"`
	CapturedSamples  uint64 `json:"captured_samples"`
	ConnectionState  int    `json:"connection_state"`
	ConnectRequests  uint64 `json:"connect_requests"`
	DatagramsSent    uint64 `json:"datagrams_sent"`
	BytesSent        uint64 `json:"bytes_sent"`
	TruncatedWindows uint64 `json:"truncated_windows"`
	TransportErrors  uint64 `json:"transport_errors"`
}

func update(fn func(s *Counters)) {
	countersMu.Lock()
	fn(&counters)
	countersMu.Unlock()
}

// Current returns a copy of the current values.
func Current() Counters {
	countersMu.RLock()
	defer countersMu.RUnlock()
	return counters
}

// SetRecording records whether the microphone is recording.
func SetRecording(recording bool) {
	v := 0.0
	if recording {
		v = 1
	}
	captureRecording.Set(v)
	update(func(s *Counters) { s.Recording = recording })
}

// SetSampleRate records the selected device's rate.
func SetSampleRate(rate int) {
	captureSampleRate.Set(float64(rate))
	update(func(s *Counters) { s.SampleRate = rate })
}

// AddCapturedSamples counts samples extracted in one tick.
func AddCapturedSamples(n int) {
	captureSamples.Add(float64(n))
	update(func(s *Counters) { s.CapturedSamples += uint64(n) })
}

// IncArmTimeouts counts an abandoned recording start.
func IncArmTimeouts() {
	captureArmTimeouts.Inc()
}

// SetConnectionState records the discovery state, one of the Connection* constants.
func SetConnectionState(state int) {
	discoveryState.Set(float64(state))
	update(func(s *Counters) { s.ConnectionState = state })
}

// IncConnectRequests counts a broadcast connect request.
func IncConnectRequests() {
	discoveryRequests.Inc()
	update(func(s *Counters) { s.ConnectRequests++ })
}

// IncConnectResponses counts a connect response by outcome.
func IncConnectResponses(result string) {
	discoveryResponses.WithLabelValues(result).Inc()
}

// AddDatagramSent counts one audio datagram of n bytes.
func AddDatagramSent(n int) {
	senderDatagrams.Inc()
	senderBytes.Add(float64(n))
	update(func(s *Counters) {
		s.DatagramsSent++
		s.BytesSent += uint64(n)
	})
}

// IncTruncated counts an audio window cut to the datagram limit.
func IncTruncated() {
	senderTruncated.Inc()
	update(func(s *Counters) { s.TruncatedWindows++ })
}

// IncTransportErrors counts a failed UDP operation.
func IncTransportErrors(component, op string) {
	transportErrors.WithLabelValues(component, op).Inc()
	update(func(s *Counters) { s.TransportErrors++ })
}
