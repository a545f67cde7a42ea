package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents logging verbosity
type Level int

const (
	ErrorLevel Level = iota
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = map[Level]string{
	ErrorLevel: "ERROR",
	InfoLevel:  "INFO",
	DebugLevel: "DEBUG",
	TraceLevel: "TRACE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return strings.ToLower(name)
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Logger writes leveled messages to the console and, optionally, a log file.
// It also satisfies coverage.Logger through SafeLog.
type Logger struct {
	level      Level
	logPath    string
	logFile    *os.File
	mu         sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	fileLogger *log.Logger
}

// New creates a logger. When logDir is set a timestamped log file is created
// inside it.
func New(level Level, logDir string) (*Logger, error) {
	if logDir == "" {
		return newConsole(level), nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("cov-loupe-%s.log", time.Now().Format("20060102-150405")))
	return Open(level, logPath)
}

// Open creates a logger that appends to the file at path. The special value
// "stderr" sends file output to standard error and "off" disables it.
func Open(level Level, path string) (*Logger, error) {
	l := newConsole(level)
	switch path {
	case "", "off":
		return l, nil
	case "stderr":
		l.fileLogger = log.New(os.Stderr, "", log.LstdFlags)
		l.logPath = path
		return l, nil
	case "stdout":
		l.fileLogger = log.New(os.Stdout, "", log.LstdFlags)
		l.logPath = path
		return l, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.logFile = f
	l.logPath = path
	l.fileLogger = log.New(f, "", log.LstdFlags)
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{level: ErrorLevel, stdout: io.Discard, stderr: io.Discard}
}

func newConsole(level Level) *Logger {
	return &Logger{
		level:  level,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// SetOutput redirects console output. The MCP server points both streams at
// stderr so stdout carries only protocol frames.
func (l *Logger) SetOutput(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = stdout
	l.stderr = stderr
}

// Path returns where file output goes, or "" when there is none.
func (l *Logger) Path() string {
	return l.logPath
}

// Level returns the configured verbosity.
func (l *Logger) Level() Level {
	return l.level
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		err := l.logFile.Close()
		l.logFile = nil
		l.fileLogger = nil
		return err
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level > l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s: %s", timestamp, levelNames[level], msg)
	}

	if level == ErrorLevel {
		fmt.Fprintf(l.stderr, "❌ %s\n", msg)
	} else {
		fmt.Fprintf(l.stdout, "%s\n", msg)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(TraceLevel, format, args...)
}

// SafeLog records a diagnostic from the coverage core. It goes to the log
// file only, so command output stays parseable, and it never panics.
func (l *Logger) SafeLog(message string) {
	if l == nil {
		return
	}
	defer func() { _ = recover() }()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileLogger != nil {
		l.fileLogger.Printf("[DEBUG] %s", message)
	}
}

// Progress logs a progress message (always shown)
func (l *Logger) Progress(format string, args ...interface{}) {
	l.always("PROGRESS", "⏳", format, args...)
}

// Success logs a success message (always shown)
func (l *Logger) Success(format string, args ...interface{}) {
	l.always("SUCCESS", "✅", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.always("WARNING", "⚠️ ", format, args...)
}

func (l *Logger) always(tag, emoji, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s", tag, msg)
	}
	fmt.Fprintf(l.stdout, "%s %s\n", emoji, msg)
}

// ParseLevel parses a string into a log level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "error":
		return ErrorLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "trace":
		return TraceLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s (valid: error, info, debug, trace)", s)
	}
}
