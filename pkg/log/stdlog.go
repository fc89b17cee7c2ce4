package log

import (
	stdlog "log"
	"strings"
)

// RedirectStdLog routes the standard library's default logger (used by
// Pebble among others) through logger at debug level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{logger: logger.WithComponent("stdlog")})
}

type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Debug(msg)
	}
	return len(p), nil
}
