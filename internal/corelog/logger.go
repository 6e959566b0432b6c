package corelog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the ambient logging contract used by every core package (loop, handle,
// poller, supervisor, slab). It is intentionally narrow compared to the teacher's full
// hook-based Logger interface: the core only ever needs leveled, fielded entries.
type Logger interface {
	SetLevel(lvl Level)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a structured key/value pair, matching the shape of the teacher's
// logger/fields package without pulling in its full builder API.
type Field struct {
	Key string
	Val any
}

func F(key string, val any) Field { return Field{Key: key, Val: val} }

type logger struct {
	l *logrus.Logger
}

// New builds a Logger writing to w (os.Stderr when w is nil) at the given level, the
// way the teacher's logger.New wires a single output before hooks are attached.
func New(w io.Writer, lvl Level) Logger {
	l := logrus.New()
	if w == nil {
		w = os.Stderr
	}
	l.SetOutput(w)
	l.SetLevel(lvl.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{l: l}
}

func toFields(fields []Field) logrus.Fields {
	if len(fields) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(fields))
	for _, fd := range fields {
		f[fd.Key] = fd.Val
	}
	return f
}

func (g *logger) SetLevel(lvl Level) { g.l.SetLevel(lvl.logrus()) }

func (g *logger) Debug(msg string, fields ...Field) {
	g.l.WithFields(toFields(fields)).Debug(msg)
}

func (g *logger) Info(msg string, fields ...Field) {
	g.l.WithFields(toFields(fields)).Info(msg)
}

func (g *logger) Warn(msg string, fields ...Field) {
	g.l.WithFields(toFields(fields)).Warn(msg)
}

func (g *logger) Error(msg string, fields ...Field) {
	g.l.WithFields(toFields(fields)).Error(msg)
}

// Nop returns a Logger that discards everything, used by unit tests that do not care
// about log output.
func Nop() Logger {
	return New(io.Discard, ErrorLevel+1)
}
