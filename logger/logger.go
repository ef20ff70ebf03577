// Package logger provides file-backed structured logging for the daemon and
// adapter processes.
//
// The daemon is spawned detached with its stdio discarded, so everything it
// says has to go to a file. The adapter logs to its own per-PID file to keep
// concurrent adapter instances from interleaving.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gsdkit/telegram-mcp/paths"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	initDone bool
)

// DaemonLogPath returns the log file path for the daemon process.
func DaemonLogPath(projectRoot string) string {
	return filepath.Join(paths.LogsDir(projectRoot), "daemon.log")
}

// AdapterLogPath returns the log file path for an adapter process.
// Each adapter gets its own file keyed by PID.
func AdapterLogPath(projectRoot string) string {
	return filepath.Join(paths.LogsDir(projectRoot), fmt.Sprintf("adapter-%d.log", os.Getpid()))
}

// SetDebug enables or disables debug level logging.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Init initializes the logger writing to path. Must be called before logging;
// if it never is, loggers fall back to slog.Default (stderr).
// Calling Init twice is a no-op.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// Get returns the root logger instance.
// Use this when you don't have session or component context.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithSession returns a logger with the session ID attached as a structured
// field on every entry.
func WithSession(sessionID string) *slog.Logger {
	return Get().With("sessionID", sessionID)
}

// WithComponent returns a logger with the component name attached.
//
// Example:
//
//	log := logger.WithComponent("ipc-client")
//	log.Info("connected", "socketPath", path)
//	// Output: level=INFO msg=connected component=ipc-client socketPath=/tmp/...
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	root = nil
	levelVar = new(slog.LevelVar)
}
