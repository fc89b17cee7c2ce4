// Package httpserver exposes the queue over a small JSON API. Claimed
// entries are parked server-side under an opaque token; ack and requeue
// present the token instead of a handle. Stream contents travel base64 in
// JSON bodies.
package httpserver
