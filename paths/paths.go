// Package paths provides project-scoped path resolution for the telegram-mcp
// daemon and adapter.
//
// Every path is derived from a single project root so that multiple projects
// can run independent daemons on one machine:
//
//   - Socket: <tmpdir>/telegram-mcp-<hash>.sock, hash = first 8 hex chars of
//     SHA-1(absolute project root)
//   - Sessions: <root>/.planning/telegram-sessions/<sessionID>.jsonl
//   - Logs: <root>/.planning/telegram-sessions/logs/
//
// Root resolution order: explicit argument, then the PROJECT_ROOT environment
// variable, then the current working directory.
package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// planningDir is the per-project directory holding session state.
	planningDir = ".planning"
	// sessionsDirName is the subdirectory holding per-session JSONL logs.
	sessionsDirName = "telegram-sessions"
	// socketHashLen is the number of hex characters of the root hash embedded
	// in the socket filename. 8 hex chars (~2^32) keeps collisions negligible
	// for the handful of projects open on one machine.
	socketHashLen = 8
)

// ResolveRoot returns the project root to use for all derived paths.
// An explicit non-empty argument wins, then PROJECT_ROOT, then the cwd.
// The result is always an absolute path.
func ResolveRoot(explicit string) string {
	root := explicit
	if root == "" {
		root = os.Getenv("PROJECT_ROOT")
	}
	if root == "" {
		if cwd, err := os.Getwd(); err == nil {
			root = cwd
		} else {
			root = "."
		}
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return root
}

// SocketPath returns the Unix domain socket path for the daemon serving root.
// Same root always yields the same path across process restarts.
func SocketPath(root string) string {
	sum := sha1.Sum([]byte(root))
	hash := hex.EncodeToString(sum[:])[:socketHashLen]
	return filepath.Join(os.TempDir(), fmt.Sprintf("telegram-mcp-%s.sock", hash))
}

// SessionsDir returns the directory holding per-session JSONL logs for root.
func SessionsDir(root string) string {
	return filepath.Join(root, planningDir, sessionsDirName)
}

// SessionFile returns the JSONL log path for a single session.
func SessionFile(root, sessionID string) string {
	return filepath.Join(SessionsDir(root), sessionID+".jsonl")
}

// LogsDir returns the directory for daemon and adapter log files.
func LogsDir(root string) string {
	return filepath.Join(SessionsDir(root), "logs")
}
