// Package logging builds the service logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the logger output.
type Options struct {
	Level string
	// File, when set, receives a rotated copy of the log.
	File string
	// Journal selects plain JSON lines for the systemd journal instead of
	// the console writer.
	Journal bool
}

// New builds a logger writing to out and, optionally, a rotated file.
func New(out io.Writer, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	if !opts.Journal {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    1,
			MaxBackups: 2,
		})
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).Level(level).With()
	if !opts.Journal {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger(), nil
}

// UnderSystemd reports whether the process was started by systemd.
func UnderSystemd() bool {
	return os.Getenv("INVOCATION_ID") != ""
}
