// Package logx builds the console loggers used by linesort.
package logx

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const callerWidth = 24

// NewLoggerTo returns a console logger writing to w at the given level.
// Each line carries an RFC3339 timestamp and a padded file:line caller.
func NewLoggerTo(w io.Writer, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = shortCaller
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

func shortCaller(_ uintptr, file string, line int) string {
	return fmt.Sprintf("%-*s", callerWidth, fmt.Sprintf("%s:%d", filepath.Base(file), line))
}

// Component returns a child logger tagged with the pipeline component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
