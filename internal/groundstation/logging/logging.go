// Package logging constructs the single logrus logger threaded through
// the Supervisor, Server, Bridge, and cache adapter.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a structured JSON logger at the given level. An unrecognised
// level falls back to Info rather than failing startup.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
