package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger provides leveled logging (info/warning/error) to a single monitor.log
// file plus stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	file       *os.File
	mu         sync.Mutex
}

// New creates a Logger writing to monitor.log inside logDir, creating the
// directory if needed.
func New(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "monitor.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	flags := log.Ldate | log.Ltime
	outWriter := io.MultiWriter(os.Stdout, file)
	errWriter := io.MultiWriter(os.Stderr, file)

	return &Logger{
		infoLog:    log.New(outWriter, "[INFO] ", flags),
		warningLog: log.New(outWriter, "[WARNING] ", flags),
		errorLog:   log.New(errWriter, "[ERROR] ", flags),
		file:       file,
	}, nil
}

// NewDiscard returns a Logger that writes nowhere. Used by tests.
func NewDiscard() *Logger {
	flags := log.Ldate | log.Ltime
	return &Logger{
		infoLog:    log.New(io.Discard, "[INFO] ", flags),
		warningLog: log.New(io.Discard, "[WARNING] ", flags),
		errorLog:   log.New(io.Discard, "[ERROR] ", flags),
	}
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
