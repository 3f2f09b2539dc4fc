// Package log is a small leveled wrapper around the standard library logger,
// adapted from tegola's internal/log package.
package log

import (
	"fmt"
	"log"
	"os"
)

// Level controls which severities are emitted.
type Level int

const (
	ErrorLevel Level = iota
	WarnLevel
	InfoLevel
	DebugLevel
)

var (
	current = InfoLevel
	logger  = log.New(os.Stderr, "", log.LstdFlags)
)

// SetLevel adjusts the minimum severity that will be printed.
func SetLevel(l Level) { current = l }

func emit(l Level, prefix string, format string, args ...interface{}) {
	if l > current {
		return
	}
	logger.Output(3, prefix+" "+fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) { emit(ErrorLevel, "[ERROR]", format, args...) }
func Warn(format string, args ...interface{})  { emit(WarnLevel, "[WARN]", format, args...) }
func Info(format string, args ...interface{})  { emit(InfoLevel, "[INFO]", format, args...) }
func Debug(format string, args ...interface{}) { emit(DebugLevel, "[DEBUG]", format, args...) }

// Fatal logs an error and terminates the process with exit code 1, used only
// for unrecoverable startup failures (spec: fatal startup error -> exit 1).
func Fatal(format string, args ...interface{}) {
	emit(ErrorLevel, "[FATAL]", format, args...)
	os.Exit(1)
}
