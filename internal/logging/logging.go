// Package logging builds the logrus logger shared by the snowflaked process.
package logging

import (
	"bytes"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ComponentKey tags every entry with the subsystem that logged it.
const ComponentKey = "component"

// Options configures New.
type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// Format is FormatText or FormatJSON; empty means text.
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// New returns a logger configured from opts.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want %s or %s)", opts.Format, FormatText, FormatJSON)
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}
	return logger, nil
}

// Component returns l tagged with the given component name.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	return l.WithField(ComponentKey, name)
}

// RedirectStdLog sends output of the standard library log package to l at
// info level. The returned func restores the previous writer and flags.
func RedirectStdLog(l logrus.FieldLogger) (restore func()) {
	prevOut, prevFlags, prevPrefix := stdlog.Writer(), stdlog.Flags(), stdlog.Prefix()
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{log: Component(l, "stdlog")})
	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
	}
}

type stdWriter struct {
	log logrus.FieldLogger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\r\n"))
	if msg != "" {
		w.log.Info(msg)
	}
	return len(p), nil
}
