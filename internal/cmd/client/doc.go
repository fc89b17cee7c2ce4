// Package clientcmd holds the CLI commands that talk to a running docq
// server over its HTTP API.
package clientcmd
