// Package logging builds the logrus logger shared by the service and CLIs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// TimestampFormat has millisecond resolution and a zone, and sorts as text.
const TimestampFormat = "2006-01-02T15:04:05.999Z07:00"

// Options select level and output format.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New returns a logger configured by o. Empty fields mean info/text/stderr.
func New(o Options) (*logrus.Logger, error) {
	l := logrus.New()
	if o.Output != nil {
		l.SetOutput(o.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	level := logrus.InfoLevel
	if o.Level != "" {
		lv, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lv
	}
	l.SetLevel(level)
	switch strings.ToLower(o.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: TimestampFormat})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", o.Format)
	}
	return l, nil
}

// FromEnv reads LOG_LEVEL and LOG_FORMAT. Bad values fall back to the
// defaults with a warning on the returned logger.
func FromEnv() *logrus.Logger {
	o := Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")}
	l, err := New(o)
	if err != nil {
		l, _ = New(Options{})
		l.WithError(err).Warn("invalid logging settings, using defaults")
	}
	return l
}

// Discard returns an entry that drops everything; handy in tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
