// Package metrics holds the process-wide Prometheus collectors for queue
// operations. They are registered on the default registry and exposed by the
// HTTP server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntriesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_entries_sent_total",
			Help: "Total number of entries inserted by Send",
		},
	)

	EntriesClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_entries_claimed_total",
			Help: "Total number of entries leased by Get",
		},
	)

	ClaimMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_claim_misses_total",
			Help: "Total number of Get calls that returned no entry",
		},
	)

	EntriesAcked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_entries_acked_total",
			Help: "Total number of entries removed by Ack/AckMulti",
		},
	)

	EntriesReplaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_entries_replaced_total",
			Help: "Total number of entries replaced in place by AckSend/Requeue",
		},
	)

	LeasesReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_leases_reaped_total",
			Help: "Total number of stuck leases returned to the queue",
		},
	)

	BlobDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docq_blob_delete_failures_total",
			Help: "Total number of blob deletions that failed after a successful entry write (orphaned blobs)",
		},
	)

	ClaimAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docq_claim_attempt_duration_seconds",
			Help:    "Time taken by a single reap-and-claim attempt",
			Buckets: prometheus.DefBuckets,
		},
	)
)
