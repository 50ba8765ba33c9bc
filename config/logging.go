package config

import (
	"os"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger. Components accept a
// *logrus.Entry rather than reading this global directly so call sites can
// attach fields (resource_id, generator_type, fingerprint, ...) once and
// pass the entry down.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&formatter.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		HideKeys:        true,
		FieldsOrder:     []string{"component", "resource_id", "generator_type"},
	})
	return l
}

// SetLevel adjusts the logger's verbosity, e.g. from a --verbose CLI flag.
func SetLevel(level logrus.Level) {
	Log.SetLevel(level)
}
