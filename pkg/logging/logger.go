// Package logging provides the structured, leveled logger every other
// package's Logger interface is satisfied by: Info/Warn/Error/Debug taking
// a message and a field map, backed by zerolog.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Format selects the on-disk/on-terminal shape of log lines.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config configures a Logger.
type Config struct {
	Debug  bool
	Format string // "auto", "json", or "console" (spec §6 log-format)
	Output io.Writer
}

// Logger wraps a zerolog.Logger behind the Info/Warn/Error/Debug shape
// killer.Logger, hooks.Logger, notify.Logger, and daemon.Logger each
// declare, so one concrete type satisfies every collaborator's interface.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger. Format "auto" writes a colorized console format
// when Output is a terminal (mattn/go-isatty) and JSON lines otherwise —
// the teacher always took an explicit format; this daemon defaults it so
// an interactive `oomsentineld --debug` run is readable without a flag.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	format := Format(cfg.Format)
	if format == "" || format == FormatAuto {
		format = FormatConsole
		if f, ok := out.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
			format = FormatJSON
		}
	}

	var writer io.Writer = out
	if format == FormatConsole {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(writer).With().Timestamp().Logger()
	if cfg.Debug {
		zl = zl.Level(zerolog.DebugLevel)
	} else {
		zl = zl.Level(zerolog.InfoLevel)
	}

	return &Logger{zl: zl}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.event(l.zl.Debug(), fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.event(l.zl.Info(), fields).Msg(msg)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.event(l.zl.Warn(), fields).Msg(msg)
}

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	event := l.zl.Error()
	if err != nil {
		event = event.Err(err)
	}
	l.event(event, fields).Msg(msg)
}

func (l *Logger) event(event *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
