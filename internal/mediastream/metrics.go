package mediastream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_stream_messages_total",
		Help: "Validated media-stream messages by event",
	}, []string{"event"})

	metricMalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stream_malformed_messages_total",
		Help: "Frames dropped by schema validation",
	})

	metricMediaFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stream_media_frames_total",
		Help: "Media payload frames received",
	})

	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_stream_state_transitions_total",
		Help: "Protocol state machine transitions",
	}, []string{"from", "to"})
)
