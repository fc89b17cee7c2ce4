// Package queue implements a priority message queue over a document store
// with an atomic find-one-and-update primitive.
//
// Each entry is one document:
//
//	payload        - caller data, arbitrary nested fields
//	running        - true while leased to a consumer
//	resetTimestamp - ms instant past which a lease is reclaimable;
//	                 the max-int64 sentinel when not running
//	earliestGet    - ms instant before which the entry is invisible to Get
//	priority       - float64, lower claims first, never NaN
//	created        - ms instant, tie-breaker within a priority
//	streams        - blob ids of out-of-band payload attachments
//
// # Entry lifecycle
//
//  1. Send inserts the entry (running=false).
//  2. Get reaps stuck leases, then atomically claims the best eligible entry
//     (running flips true, resetTimestamp becomes now+lease) and returns a
//     single-use Handle plus the entry's opened blob streams.
//  3. Ack removes the entry and discards its blobs; AckSend replaces the
//     entry in place and releases the old blobs; Requeue is AckSend with the
//     entry's own payload. A lease that is never acknowledged expires and
//     the entry becomes claimable again, ordering position unchanged.
//
// Exactly-one-claimant delivery rests entirely on the store serializing the
// conditional update; the queue holds no locks of its own. Lease reclamation
// piggybacks on every Get call, so no background sweeper runs.
//
// Blob uploads and deletes are not transactional with entry writes. When a
// blob deletion fails after a successful entry write the blob is orphaned:
// the failure is logged and counted (docq_blob_delete_failures_total), never
// retried, and never surfaced to the caller.
package queue
