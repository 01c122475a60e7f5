// Package logging wraps the standard library logger: every component takes a
// *Logger and calls Printf on it, gated by a simple integer verbosity level
// instead of pulling in a structured logging dependency (see DESIGN.md).
package logging

import (
	"log"
	"os"
)

// Level is an integer verbosity flag: 0 quiet, higher more verbose.
type Level int

const (
	LevelQuiet Level = iota
	LevelInfo
	LevelDebug
)

// Logger is a leveled wrapper around *log.Logger. The zero value logs at
// LevelQuiet to a discarded logger and is always safe to use.
type Logger struct {
	level Level
	l     *log.Logger
}

// New builds a Logger writing to os.Stderr with the given prefix and level.
func New(prefix string, level Level) *Logger {
	return &Logger{
		level: level,
		l:     log.New(os.Stderr, prefix, log.LstdFlags),
	}
}

func (lg *Logger) ready() bool { return lg != nil && lg.l != nil }

func (lg *Logger) Infof(format string, args ...interface{}) {
	if lg.ready() && lg.level >= LevelInfo {
		lg.l.Printf(format, args...)
	}
}

func (lg *Logger) Debugf(format string, args ...interface{}) {
	if lg.ready() && lg.level >= LevelDebug {
		lg.l.Printf(format, args...)
	}
}

func (lg *Logger) Errorf(format string, args ...interface{}) {
	if lg.ready() {
		lg.l.Printf(format, args...)
	}
}

// WithPrefix returns a copy of lg whose messages are tagged with an additional
// prefix, e.g. per-session ("[session abcd1234] ...").
func (lg *Logger) WithPrefix(prefix string) *Logger {
	if !lg.ready() {
		return lg
	}
	return &Logger{level: lg.level, l: log.New(os.Stderr, lg.l.Prefix()+prefix, log.LstdFlags)}
}
