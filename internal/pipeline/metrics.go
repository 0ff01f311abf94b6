package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clientela",
			Subsystem: "pipeline",
			Name:      "messages_processed_total",
			Help:      "Inbound messages processed, labeled by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	commitmentsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clientela",
			Subsystem: "pipeline",
			Name:      "commitments_detected_total",
			Help:      "Commitments the detector fired on, labeled by kind.",
		},
		[]string{"kind"},
	)
	recordsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clientela",
			Subsystem: "pipeline",
			Name:      "records_persisted_total",
			Help:      "Orders and reservations persisted, labeled by kind.",
		},
		[]string{"kind"},
	)
	processDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clientela",
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "End-to-end inbound message processing latency.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(messagesProcessed, commitmentsDetected, recordsPersisted, processDuration)
}
