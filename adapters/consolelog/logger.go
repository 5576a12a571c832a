// Package consolelog provides a colored, leveled console logger
// implementing the realtime.Logger interface.
package consolelog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level controls which messages a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// Logger writes timestamped, colored log lines to a single writer. Safe for
// concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	name  string
}

// New creates a logger writing to stderr at the given threshold.
func New(level Level) *Logger {
	return &Logger{out: os.Stderr, level: level}
}

// NewWithWriter creates a logger writing to out at the given threshold.
func NewWithWriter(out io.Writer, level Level) *Logger {
	return &Logger{out: out, level: level}
}

// Named returns a copy of the logger that prefixes every line with name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{out: l.out, level: l.level, name: name}
}

func (l *Logger) log(level Level, message string) {
	if level < l.level {
		return
	}

	label := levelColors[level].Sprintf("%-5s", levelNames[level])
	stamp := time.Now().Format("2006-01-02 15:04:05.000")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.name != "" {
		fmt.Fprintf(l.out, "%s %s [%s] %s\n", stamp, label, l.name, message)
		return
	}
	fmt.Fprintf(l.out, "%s %s %s\n", stamp, label, message)
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

// Info logs an info-level message without formatting.
func (l *Logger) Info(message string) {
	l.log(LevelInfo, message)
}
