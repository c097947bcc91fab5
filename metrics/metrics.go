// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to various parts of the pipeline.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: frames, packets, commands.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FrameDecodeLatency tracks the time spent turning one AOS transfer
	// frame into zero or more dispatched TMIVs.
	FrameDecodeLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tmtc_frame_decode_latency_seconds",
			Help:    "AOS transfer frame decode latency distribution (seconds)",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// FOP1RoundTripLatency tracks the time between an AD frame being
	// queued and FOP-1 observing its acknowledgement in a CLCW.
	FOP1RoundTripLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tmtc_fop1_round_trip_latency_seconds",
			Help:    "FOP-1 AD frame acknowledgement round trip distribution (seconds)",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
	)

	// DroppedEventCount counts locally-recovered warnings: frames or
	// packets dropped with a log line rather than surfaced to a caller.
	// Provides metrics:
	//   tmtc_dropped_event_total{reason="malformed_mpdu|frame_too_short|scid_mismatch|clcw_parse_failure|schema_validation_failure|frame_gap"}
	// A packet with an unknown APID or telemetry ID is counted under
	// schema_validation_failure; no separate reason is emitted for it.
	DroppedEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmtc_dropped_event_total",
			Help: "Count of locally-recovered warnings by reason.",
		}, []string{"reason"})

	// FOP1QueueDepth reports the number of AD frames FOP-1 currently
	// holds outstanding, awaiting acknowledgement or retransmission.
	FOP1QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmtc_fop1_queue_depth",
			Help: "Number of AD frames FOP-1 currently holds outstanding.",
		},
	)

	// LastValueStoreSize reports the number of distinct TMIV names
	// currently held in the last-received-telemetry store.
	LastValueStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tmtc_last_value_store_size",
			Help: "Number of distinct TMIV names held in the last-value store.",
		},
	)

	// RecorderBytesTotal counts bytes written to the command/telemetry
	// recorder sink. Wired to recorder.Recorder.BytesWritten().
	RecorderBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmtc_recorder_bytes_total",
			Help: "Total bytes written to the recorder sink.",
		},
	)

	// TelemetryDeliveredCount counts TMIVs successfully dispatched to
	// the telemetry bus.
	TelemetryDeliveredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tmtc_telemetry_delivered_total",
			Help: "Number of TMIVs successfully dispatched to subscribers.",
		},
	)

	// CommandsSentCount counts commands successfully transmitted, by
	// frame type (AD or BD).
	CommandsSentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmtc_commands_sent_total",
			Help: "Number of commands successfully transmitted, by frame type.",
		}, []string{"frame_type"})
)

// ObserveRecorderBytes adds the delta between prev and the recorder's
// current byte count to RecorderBytesTotal, returning the new total so
// callers can track prev across calls without a shared mutable field.
func ObserveRecorderBytes(prev, current int64) int64 {
	if current > prev {
		RecorderBytesTotal.Add(float64(current - prev))
	}
	return current
}

// init() prints a log message to let the user know that the package has been
// loaded and the metrics registered. The metrics are auto-registered, which
// means they are registered as soon as this package is loaded, and the exact
// time this occurs (and whether this occurs at all in a given context) can be
// opaque.
func init() {
	log.Println("Prometheus metrics in tmtc-broker.metrics are registered.")
}
