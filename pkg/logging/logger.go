package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger provides structured logging for deckhand components.
// All components of one process append to a session-specific file in
// ~/.deckhand/logs/; entries carry the component name and any bound
// fields such as the run ID.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	entry     *logrus.Entry
	logPath   string
	closeOnce *sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// dirOverride, when set before first use, replaces the default log
	// directory. Set from configuration at startup.
	dirOverride string

	// initOnce ensures directory initialization happens once
	initOnce sync.Once

	// initErr stores any error from directory initialization
	initErr error

	levelMu sync.Mutex
	level   = logrus.InfoLevel
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		if dirOverride != "" {
			logDir = dirOverride
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".deckhand", "logs")
		}

		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// SetDirectory overrides the log directory. Must be called before the first
// logger is created; later calls have no effect.
func SetDirectory(dir string) {
	dirOverride = dir
}

// SetLevel sets the minimum level for loggers created afterwards.
// Unknown level strings leave the current level unchanged.
func SetLevel(name string) {
	parsed, err := logrus.ParseLevel(name)
	if err != nil {
		return
	}
	levelMu.Lock()
	level = parsed
	levelMu.Unlock()
}

func currentLevel() logrus.Level {
	levelMu.Lock()
	defer levelMu.Unlock()
	return level
}

func newEngine(out io.Writer) *logrus.Logger {
	engine := logrus.New()
	engine.SetOutput(out)
	engine.SetLevel(currentLevel())
	engine.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   true,
	})
	return engine
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.deckhand/logs/<session-id>-deckhand.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
// Callers can check the error to detect fallback mode.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-deckhand.log", sessID))

	// Open in append mode; multiple components write to the same file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		wrapped := fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, wrapped), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		entry:     newEngine(file).WithField("component", component),
		logPath:   logPath,
		closeOnce: &sync.Once{},
	}, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	entry := newEngine(os.Stderr).WithField("component", component)
	entry.Warnf("failed to initialize file logging, falling back to stderr: %v", err)

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		file:      nil,
		entry:     entry,
		logPath:   "",
		closeOnce: &sync.Once{},
	}
}

// WithRun returns a logger that stamps every entry with the run ID.
// It shares the underlying file with its parent.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		file:      l.file,
		entry:     l.entry.WithField("run_id", runID),
		logPath:   l.logPath,
		closeOnce: l.closeOnce,
	}
}

// WithField returns a logger with an extra field bound to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: l.component,
		file:      l.file,
		entry:     l.entry.WithField(key, value),
		logPath:   l.logPath,
		closeOnce: l.closeOnce,
	}
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// Writer returns an io.Writer that writes to this logger's destination
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times, including on
// loggers derived with WithRun or WithField.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
