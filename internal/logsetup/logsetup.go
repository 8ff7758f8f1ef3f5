// Package logsetup configures the process-wide logrus logger, the same
// "configure once at startup, derive a FieldLogger per component after"
// idiom as lib/utils.InitLogger in the teacher repo.
package logsetup

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Purpose selects where logs go: a GUI-backed daemon always logs to
// stderr (its stdout is reserved for the front-end's own framing), a CLI
// demo driver discards logs below debug level so it doesn't clutter an
// interactive terminal session.
type Purpose int

const (
	ForDaemon Purpose = iota
	ForCLI
)

// Init configures the standard logger for purpose at level.
func Init(purpose Purpose, level logrus.Level) {
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	switch purpose {
	case ForCLI:
		if level == logrus.DebugLevel {
			logrus.SetOutput(os.Stderr)
		} else {
			logrus.SetOutput(io.Discard)
		}
	default:
		logrus.SetOutput(os.Stderr)
	}
}

// Component returns a field logger scoped to name, the unit every
// package in this core uses instead of the bare package-level logger.
func Component(name string) logrus.FieldLogger {
	return logrus.WithField("component", name)
}
