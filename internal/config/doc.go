// Package config loads process configuration: built-in defaults, overlaid
// by an optional JSON file, overlaid by DOCQ_* environment variables.
package config
