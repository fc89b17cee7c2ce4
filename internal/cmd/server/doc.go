// Package serverrun wires a configured store into a queue and serves the
// HTTP API until the context is cancelled.
package serverrun
