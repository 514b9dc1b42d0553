// Package dlog provides the structured logger shared across repository,
// cache, and vfs operations.
package dlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used throughout Dits. It is a thin
// wrapper so call sites depend on this package rather than logrus
// directly, keeping the logging backend swappable.
type Logger struct {
	*logrus.Entry
}

// New returns a logger writing text-formatted entries to w at the given
// level name ("debug", "info", "warn", "error"; unrecognized names fall
// back to "info").
func New(w io.Writer, level string) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(parseLevel(level))
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{Entry: logrus.NewEntry(l)}
}

// Default returns a logger writing to stderr at info level.
func Default() *Logger {
	return New(os.Stderr, "info")
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// With returns a child logger carrying an additional field, for tagging
// log lines with the component or repository path they came from.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}
