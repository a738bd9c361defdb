// Package logging builds the structured logger shared by the CLI and the
// publishing pipeline.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "text" or "json". Empty means text.
	Format string
	// Verbose forces debug and wins over Quiet.
	Verbose bool
	// Quiet forces error.
	Quiet bool
	// Writer defaults to stderr.
	Writer io.Writer
}

// New returns a logger configured from opts.
func New(opts Options) (*log.Logger, error) {
	level := log.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := log.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, errors.Wrapf(err, "log.level %q", opts.Level)
		}
		level = parsed
	}
	switch {
	case opts.Verbose:
		level = log.DebugLevel
	case opts.Quiet:
		level = log.ErrorLevel
	}

	var formatter log.Formatter
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		formatter = log.TextFormatter
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, errors.Newf("log.format %q: expected text, json or logfmt", opts.Format)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: formatter != log.TextFormatter,
	}), nil
}

// OrDefault returns l, or the package default logger when l is nil.
func OrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
