package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// ZeroLogger adapts zerolog to the key/value logger used by the temporal SDK,
// so the same logger can be handed to clients, workers and the join engine.
type ZeroLogger struct {
	logger zerolog.Logger
}

var _ log.Logger = (*ZeroLogger)(nil)
var _ log.WithLogger = (*ZeroLogger)(nil)

func NewZeroLogger(w io.Writer, level zerolog.Level) *ZeroLogger {
	return &ZeroLogger{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// NewConsoleLogger writes human readable lines to stderr.
func NewConsoleLogger(debug bool) *ZeroLogger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return NewZeroLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, level)
}

// NopLogger discards everything.
func NopLogger() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop()}
}

func (l *ZeroLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(keyvals).Msg(msg)
}

func (l *ZeroLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(keyvals).Msg(msg)
}

func (l *ZeroLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(keyvals).Msg(msg)
}

func (l *ZeroLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(keyvals).Msg(msg)
}

func (l *ZeroLogger) With(keyvals ...interface{}) log.Logger {
	return &ZeroLogger{logger: l.logger.With().Fields(keyvals).Logger()}
}
