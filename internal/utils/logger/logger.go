package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level is the minimum severity a Logger prints.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.Mutex
	out      io.Writer = os.Stdout
	minLevel           = levelFromEnv()

	debugColor   = color.New(color.FgHiBlack)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	nameColor    = color.New(color.FgMagenta)
)

// Logger is a small leveled console logger tagged with a component name.
type Logger struct {
	name string
}

// New returns a logger that prefixes every line with name.
func New(name string) *Logger {
	return &Logger{name: strings.ToUpper(name)}
}

// SetOutput redirects all loggers. Colors are disabled for non-terminal writers.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if w != os.Stdout && w != os.Stderr {
		color.NoColor = true
	}
}

// SetLevel changes the minimum level for all loggers.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelFromEnv() Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.print(LevelDebug, debugColor, "DEBUG", format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.print(LevelInfo, infoColor, "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.print(LevelWarn, warnColor, "WARN", format, args...)
}

func (l *Logger) Success(format string, args ...interface{}) {
	l.print(LevelInfo, successColor, "OK", format, args...)
}

// Error logs msg and returns it as an error so callers can `return log.Error(...)`.
// A trailing error argument is wrapped, so errors.Is/As still see it.
func (l *Logger) Error(format string, args ...interface{}) error {
	msg := format
	var cause error
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			cause = err
		}
		if strings.Contains(format, "%") {
			msg = fmt.Sprintf(format, args...)
		} else {
			msg = format + ": " + fmt.Sprint(args...)
		}
	}
	l.print(LevelError, errorColor, "ERROR", "%s", msg)

	if cause != nil {
		return &loggedError{msg: msg, cause: cause}
	}
	return errors.New(msg)
}

type loggedError struct {
	msg   string
	cause error
}

func (e *loggedError) Error() string { return e.msg }
func (e *loggedError) Unwrap() error { return e.cause }

func (l *Logger) print(level Level, c *color.Color, tag, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(out, "%s %s %s %s\n", ts, c.Sprintf("%-5s", tag), nameColor.Sprintf("[%s]", l.name), msg)
}
