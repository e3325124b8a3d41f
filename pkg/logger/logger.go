package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger used across the application.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

type zerologLogger struct {
	zl zerolog.Logger
}

func New(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()

	return &zerologLogger{zl: zl}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

func (l *zerologLogger) Debug(msg string, args ...interface{}) {
	l.emit(l.zl.Debug(), msg, args)
}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	l.emit(l.zl.Info(), msg, args)
}

func (l *zerologLogger) Warn(msg string, args ...interface{}) {
	l.emit(l.zl.Warn(), msg, args)
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	l.emit(l.zl.Error(), msg, args)
}

func (l *zerologLogger) Fatal(msg string, args ...interface{}) {
	l.emit(l.zl.Fatal(), msg, args)
}

func (l *zerologLogger) emit(e *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}
