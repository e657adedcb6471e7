// Package logging builds the structured loggers used across the
// simulator. Each subsystem receives its own *logrus.Entry from New
// rather than reaching into a package-level global, so a subsystem's
// log identity travels with the value that owns it instead of living
// as implicit shared state.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Entry tagged with the given subsystem name. level
// is parsed with logrus.ParseLevel; an unrecognized level falls back to
// Info rather than failing startup over a cosmetic setting.
func New(subsystem, level string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l.WithField("subsystem", subsystem)
}

// Discard returns an entry that drops everything, for tests that don't
// care about log output.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("subsystem", "test")
}
