// Package pebbledoc implements the storage contracts on an embedded Pebble
// database: a single-process document store plus blob store. It backs the
// CLI's embedded mode and the test suite, where a MongoDB deployment is not
// available.
//
// # Keyspace
//
//	doc/{id}        - document JSON (id is a sortable hex id)
//	idx/{name}      - index key-sequence JSON (bookkeeping only)
//	blobmeta/{id}   - blob original name
//	blobdata/{id}   - blob bytes
//
// # Atomicity
//
// FindOneAndUpdate's select-and-update runs under a process-wide mutex and
// commits through one Pebble batch. In a single-process store mutual
// exclusion is the degenerate form of the compare-and-swap loop a
// multi-process port of this backend would need.
//
// Indexes are recorded but not materialized; queries scan and filter. That
// keeps the contract honest (ListIndexes/CreateIndex drive the queue's
// idempotence checks) at embedded-scale cost.
package pebbledoc
