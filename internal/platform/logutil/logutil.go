// Package logutil provides nil-safe logger helpers.
package logutil

import (
	"io"
	"log/slog"
)

// noop is a package-level discard logger, created once.
var noop = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// tokenPrefixLen is how much of a secret survives redaction.
const tokenPrefixLen = 6

// RedactToken returns a log-safe form of a bearer secret such as an invite token.
// With allowSensitive the value passes through unchanged.
func RedactToken(token string, allowSensitive bool) string {
	if allowSensitive {
		return token
	}
	if len(token) <= tokenPrefixLen {
		return "[redacted]"
	}
	return token[:tokenPrefixLen] + "..."
}
