// Package logutil builds the process logger.
package logutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"modeldash/internal/common/fsutil"
)

// Options selects level, encoding and destination.
type Options struct {
	// Level is a zerolog level name; empty or unknown means info.
	Level string
	// Format is "json" or "console" (default).
	Format string
	// File, when set, receives a copy of every line and is rotated at 50 MB.
	File string
	// Out is the terminal destination; nil means stderr.
	Out io.Writer
}

// New returns a logger and a close func for the rotating file, if any.
func New(opts Options) (zerolog.Logger, func() error, error) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") || opts.Format == "" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	writers := []io.Writer{out}
	closeFn := func() error { return nil }
	if opts.File != "" {
		path, err := fsutil.EnsureFileDir(opts.File)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		// the file always gets JSON lines
		writers = append(writers, rotator)
		closeFn = rotator.Close
	}
	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Logger(), closeFn, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
