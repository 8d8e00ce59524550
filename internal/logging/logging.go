// Package logging builds the per-subsystem *logrus.Logger instances used
// across the node: every subsystem constructor takes a *logrus.Logger
// rather than reaching for a bare package-level global.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// New builds a logger for one subsystem (e.g. "znsite", "zntracker",
// "zncontrol"), tagging every entry with a "component" field so logs from
// a running node can be filtered by origin. When logDir is non-empty, the
// subsystem's output is duplicated to <logDir>/<component>.log.
func New(component string, level logrus.Level, logDir string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	out := io.Writer(os.Stderr)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(logDir, component+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	logger.SetOutput(out)

	return logger, nil
}

// MustNew is New without an error return, for call sites (command-line
// wiring, test setup) that would rather fall back to stderr logging than
// fail outright over a log-directory problem.
func MustNew(component string, level logrus.Level, logDir string) *logrus.Logger {
	logger, err := New(component, level, logDir)
	if err != nil {
		fallback := logrus.New()
		fallback.WithError(err).Errorf("logging: falling back to stderr for %s", component)
		return fallback
	}
	return logger
}

// ParseLevel adapts logrus.ParseLevel with a safe default: a level string
// read out of configuration falls back to fallback rather than refusing
// to start the node.
func ParseLevel(s string, fallback logrus.Level) logrus.Level {
	if s == "" {
		return fallback
	}
	lv, err := logrus.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return lv
}

// WithComponent returns a logger entry that is a logrus.FieldLogger, for
// call sites that only need to log a few lines and don't want to carry a
// whole *logrus.Logger around.
func WithComponent(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
