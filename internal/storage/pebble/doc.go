// Package pebblestore wraps a Pebble database with a fixed fsync policy and
// small read/write helpers. It is the byte-level engine under the embedded
// document store (storage/pebbledoc); nothing above that layer touches Pebble
// directly.
package pebblestore
