package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Root logger; components derive from it with Component.
var Root = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogOptions struct {
	Level  zerolog.Level
	Type   LoggerType
	Output io.Writer
}

func ParseLoggerType(s string) (LoggerType, error) {
	switch strings.ToLower(s) {
	case "", "console":
		return ConsoleLogger, nil
	case "json":
		return JSONLogger, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", s)
	}
}

func InitLogger(opts LogOptions) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	if opts.Type == ConsoleLogger {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	}

	Root = zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
}

func Component(name string) zerolog.Logger {
	return Root.With().Str("component", name).Logger()
}
