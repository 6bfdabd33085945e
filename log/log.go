/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

// Package log provides the leveled logger handle threaded through every
// session-owned component. Unlike the upstream jackal package this is
// based on, there is no process-wide singleton: each session constructs
// its own *Logger and tears it down with the session (Design Notes §9).
package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DBG"
	case InfoLevel:
		return "INF"
	case WarnLevel:
		return "WRN"
	case ErrorLevel:
		return "ERR"
	default:
		return "???"
	}
}

// Logger is a minimal leveled logger scoped to a single session.
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{level: level, out: log.New(w, "", 0)}
}

// Nop returns a Logger that discards everything; it is the zero-cost
// default for callers that don't care about diagnostics.
func Nop() *Logger {
	return New(io.Discard, ErrorLevel+1)
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	if l == nil || lvl < l.level {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.out.Printf("%s [%s] %s", ts, lvl, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }

// Error logs err at ErrorLevel, doing nothing if err is nil.
func (l *Logger) Error(err error) {
	if err == nil {
		return
	}
	l.logf(ErrorLevel, "%v", err)
}
