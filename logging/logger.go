package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input into lines and forwards each
// complete line to a callback.
type writer struct {
	callback func(string)
	buffer   []byte
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is a leveled, prefixed logger. A nil *Logger is valid and logs
// nothing, so components may be handed a disabled logger without having to
// guard every call site. It is safe for concurrent use.
type Logger struct {
	// level is the minimum severity this logger (and its descendants, unless
	// overridden) will emit.
	level Level
	// prefix identifies the component that owns this logger, e.g. "engine".
	prefix string
}

// NewRoot creates a new root logger at the given level. Command entry points
// construct exactly one of these and derive sub-loggers from it.
func NewRoot(level Level) *Logger {
	return &Logger{level: level}
}

// Sublogger derives a logger for a named sub-component, inheriting the
// parent's level.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{level: l.level, prefix: prefix}
}

// Level reports the logger's configured level. A nil logger reports
// LevelDisabled.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && l.level >= level
}

func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// Error logs err at LevelError, in red.
func (l *Logger) Error(err error) {
	if l.enabled(LevelError) {
		l.output(3, color.RedString("ERROR: %v", err))
	}
}

// Warn logs err at LevelWarn, in yellow.
func (l *Logger) Warn(err error) {
	if l.enabled(LevelWarn) {
		l.output(3, color.YellowString("WARNING: %v", err))
	}
}

// Info logs a formatted message at LevelInfo.
func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Infoln logs v at LevelInfo with fmt.Sprintln semantics.
func (l *Logger) Infoln(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprintln(v...))
	}
}

// Debug logs a formatted message at LevelDebug.
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, color.CyanString(fmt.Sprintf(format, v...)))
	}
}

// Trace logs a formatted message at LevelTrace.
func (l *Logger) Trace(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that logs each line written to it at
// LevelInfo. If the logger is nil or LevelInfo is disabled, it discards
// input without scanning it.
func (l *Logger) Writer() io.Writer {
	if !l.enabled(LevelInfo) {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Infoln(s) }}
}
