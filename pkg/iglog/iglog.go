// Package iglog is this tool's structured-logging wrapper, giving every
// cmd/ binary the same field conventions (mode, seed, target) instead of
// each reaching for logrus directly.
//
// The teacher (std/compiler) logs with plain fmt.Fprintf to stderr; this
// tool's ambient stack upgrades that to structured fields because
// internal/driver's goroutine-per-seed fan-out needs log lines
// attributable to a specific seed, which unstructured text output makes
// hard to grep reliably.
package iglog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is a thin alias so callers don't import logrus directly.
type Logger = logrus.Logger

// New builds the base logger every cmd/ binary starts from: text output
// to stderr, level controlled by INPUT_GEN_LOG_LEVEL (spec.md §6 env
// vars), defaulting to info.
func New() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if v := os.Getenv("INPUT_GEN_LOG_LEVEL"); v != "" {
		if parsed, err := logrus.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	l.SetLevel(level)
	return l
}

// WithSeed scopes a logger to one seed's goroutine, the field internal/driver
// attaches to every log line a generation/run worker emits.
func WithSeed(l *Logger, seed int64) *logrus.Entry {
	return l.WithField("seed", seed)
}

// WithMode scopes a logger to the active mode.
func WithMode(l *Logger, mode string) *logrus.Entry {
	return l.WithField("mode", mode)
}
