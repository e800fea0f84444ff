package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the zerolog output. The zero value logs JSON at info level
// to stdout.
type Options struct {
	Level   string    `json:"level"`
	Console bool      `json:"console"`
	Out     io.Writer `json:"-"`
}

// OptionsFromEnv reads APP_ENV and LOG_LEVEL.
func OptionsFromEnv() Options {
	return Options{
		Level:   os.Getenv("LOG_LEVEL"),
		Console: strings.ToLower(os.Getenv("APP_ENV")) == "dev",
	}
}

// New builds a component logger using o.
func (o Options) New(component string) Logger {
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	if o.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(o.Level))
	if err != nil || o.Level == "" {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(out).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger configured from the environment.
// All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	return OptionsFromEnv().New(component)
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
