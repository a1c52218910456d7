package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session controller metrics
var (
	// TransitionsTotal tracks controller operations by operation and result
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "looprec_transitions_total",
			Help: "Total session transitions by operation and result",
		},
		[]string{"operation", "result"},
	)

	// TransitionDuration tracks how long begin/end transitions keep the controller busy
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "looprec_transition_duration_seconds",
			Help:    "Session transition duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// Busy is 1 while a transition is in flight
	Busy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "looprec_busy",
			Help: "1 while a session transition is in flight",
		},
	)

	// SessionKind is 1 for the active session kind (idle/recording/playback)
	SessionKind = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "looprec_session_kind",
			Help: "Current session kind (1 = active)",
		},
		[]string{"kind"},
	)

	// RecordingBytes tracks the size of finalized recordings
	RecordingBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "looprec_recording_bytes",
			Help:    "Size of finalized recordings in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)
)

// Remote control metrics
var (
	// WebSocketConnectionsCurrent tracks connected status subscribers
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "looprec_websocket_connections_current",
			Help: "Current number of status WebSocket connections",
		},
	)

	// HTTPRequestsTotal tracks remote control requests by endpoint and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "looprec_http_requests_total",
			Help: "Remote control requests by endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)
)

// ObserveSessionKind marks kind as the only active session kind
func ObserveSessionKind(kind string, all []string) {
	for _, k := range all {
		v := 0.0
		if k == kind {
			v = 1
		}
		SessionKind.WithLabelValues(k).Set(v)
	}
}
