// Package logger builds the service logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// Stderr is the file name that makes the logger write to stderr.
const Stderr = "-"

// Config is the logger configuration.
type Config struct {
	// File is the path of the log file.  Empty string or [Stderr] mean
	// stderr.
	File string

	// Format is the log format, see [slogutil.NewFormat].
	Format string

	// Verbosity is the verbosity level, see [slogutil.VerbosityToLevel].
	Verbosity uint8

	// AddTimestamp adds timestamps to the log records.
	AddTimestamp bool
}

// New returns a logger built from c and the function closing its output.
func New(c *Config) (l *slog.Logger, closeFn func() (err error), err error) {
	format, err := slogutil.NewFormat(c.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("log format: %w", err)
	}

	lvl, err := slogutil.VerbosityToLevel(c.Verbosity)
	if err != nil {
		return nil, nil, fmt.Errorf("verbosity: %w", err)
	}

	var out io.Writer = os.Stderr
	closeFn = func() (err error) { return nil }
	if c.File != "" && c.File != Stderr {
		var f *os.File
		f, err = os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}

		out, closeFn = f, f.Close
	}

	l = slogutil.New(&slogutil.Config{
		Output:       out,
		Format:       format,
		AddTimestamp: c.AddTimestamp,
		Level:        lvl,
	})

	return l, closeFn, nil
}
