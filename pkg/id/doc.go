// Package id provides a 128-bit, lexicographically sortable identifier used
// by the embedded document store for document and blob ids.
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence], so
// byte-wise (and hex-string) comparison preserves generation order. The
// Generator is monotonic per process: a regressing clock pins to the last
// seen millisecond, and sequence exhaustion within one millisecond waits for
// the next.
package id
