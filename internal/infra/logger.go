package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger passed between packages.
type Logger = zerolog.Logger

// ServiceName is attached to every log line.
const ServiceName = "vtokiosk"

// NewLogger returns the kiosk logger on stdout: debug and human readable in
// development, info and JSON elsewhere.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv)
}

func newLogger(w io.Writer, appEnv string) zerolog.Logger {
	dev := appEnv == "development"
	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	ctx := zerolog.New(w).With().Timestamp().Str("service", ServiceName)
	if host, err := os.Hostname(); err == nil && !dev {
		ctx = ctx.Str("kiosk", host)
	}
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	return ctx.Logger().Level(level)
}

// NopLogger discards everything. Constructors fall back to it for a nil
// logger.
func NopLogger() *Logger {
	l := zerolog.Nop()
	return &l
}
