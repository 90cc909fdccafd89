// Package logger provides the levelled, structured logger used by the
// analysis service. Log lines share stdout with protocol responses, so every
// line carries a fixed prefix and never starts with the response marker.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the logging level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSilent
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a flag value such as "debug" or "warn" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "silent", "off", "none":
		return LevelSilent, nil
	}
	return LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

// Logger provides structured logging with configurable levels
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	SetLevel(level Level)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value any
}

// F is a convenience function for creating fields
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Prefix starts every log line.
const Prefix = "[tsuparser]"

type standardLogger struct {
	mu     *sync.Mutex
	level  *Level
	out    io.Writer
	fields []Field
	tags   map[Level]*color.Color
}

// New creates a logger writing to out. Level tags are coloured only when out
// is the process stdout or stderr and fatih/color detected a terminal.
func New(level Level, out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}
	colored := (out == os.Stdout || out == os.Stderr) && !color.NoColor
	tags := map[Level]*color.Color{
		LevelDebug: color.New(color.FgHiBlack),
		LevelInfo:  color.New(color.FgCyan),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed, color.Bold),
	}
	for _, c := range tags {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	lvl := level
	return &standardLogger{
		mu:    &sync.Mutex{},
		level: &lvl,
		out:   out,
		tags:  tags,
	}
}

// NewSilent creates a logger that outputs nothing
func NewSilent() Logger {
	return New(LevelSilent, io.Discard)
}

func (l *standardLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.level = level
}

// WithFields returns a logger that appends fields to every line. The child
// shares the parent's level and writer.
func (l *standardLogger) WithFields(fields ...Field) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	merged := make([]Field, len(l.fields)+len(fields))
	copy(merged, l.fields)
	copy(merged[len(l.fields):], fields)

	return &standardLogger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		fields: merged,
		tags:   l.tags,
	}
}

func (l *standardLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *standardLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *standardLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *standardLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *standardLogger) log(level Level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < *l.level {
		return
	}

	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteByte(' ')
	b.WriteString(l.tags[level].Sprint(level.String()))
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, f := range l.fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(l.out, b.String())
}
