package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Logger defines the stockroom logging contract.
// Implementations should support standard log levels and be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// StdLogger wraps Go's standard logger to implement the stockroom logging contract.
// Debug messages are dropped unless enabled with SetDebug.
type StdLogger struct {
	logger *log.Logger
	debug  atomic.Bool
}

// New creates a StdLogger that writes to w with standard timestamps.
func New(w io.Writer) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
	}
}

// NewStdLogger creates a StdLogger writing to stderr, where diagnostics belong.
func NewStdLogger() *StdLogger {
	return New(os.Stderr)
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	if !l.debug.Load() {
		return
	}
	l.logger.Printf("[DEBUG] "+msg, args...)
}

// SetDebug turns Debug output on or off.
func (l *StdLogger) SetDebug(on bool) {
	l.debug.Store(on)
}

// Default provides a global default logger instance using Go's standard logger.
var Default Logger = NewStdLogger()

// Discard drops every message. Useful in tests.
var Discard Logger = New(io.Discard)
