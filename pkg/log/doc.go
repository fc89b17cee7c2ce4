// Package log provides docq's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Output format (text or JSON) and
// destinations are pluggable via options.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("queue"))
//	l.Info("entry claimed", log.Str("id", "64b..."), log.Int("reaped", 3))
//
// Loggers are constructed and passed explicitly; there is no process-wide
// default. Nop() returns a discard logger for tests and optional wiring.
package log
