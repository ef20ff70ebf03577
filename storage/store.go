package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/paths"
)

// Store provides locked, crash-safe access to the per-session JSONL logs of
// one project root. All mutations of existing records go through
// RewriteInPlace, so readers never observe a half-updated file.
type Store struct {
	root string
	log  *slog.Logger

	lockRetries int
	lockBackoff time.Duration
}

// NewStore creates a Store for the given project root.
func NewStore(projectRoot string) *Store {
	return &Store{
		root:        projectRoot,
		log:         logger.WithComponent("storage"),
		lockRetries: defaultLockRetries,
		lockBackoff: defaultLockBackoff,
	}
}

// SetLockPolicy overrides the default lock retry budget and initial backoff.
func (s *Store) SetLockPolicy(retries int, backoff time.Duration) {
	if retries > 0 {
		s.lockRetries = retries
	}
	if backoff > 0 {
		s.lockBackoff = backoff
	}
}

// Root returns the project root the store is bound to.
func (s *Store) Root() string {
	return s.root
}

// SessionPath returns the log file path for a session.
func (s *Store) SessionPath(sessionID string) string {
	return paths.SessionFile(s.root, sessionID)
}

// Append adds one record as a new line at the end of the session's log,
// creating the file (and sessions directory) on first write. The append is
// performed under the session file's lock.
func (s *Store) Append(sessionID string, rec Record) error {
	path := s.SessionPath(sessionID)
	if err := os.MkdirAll(paths.SessionsDir(s.root), 0755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return withLockPolicy(path, s.lockRetries, s.lockBackoff, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open session log %s: %w", path, err)
		}
		defer f.Close()

		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append to session log %s: %w", path, err)
		}
		return nil
	})
}

// LoadAll reads the session log and returns its records in file order.
// A missing file yields an empty slice. A malformed line is logged and
// skipped; it never fails the whole read.
func (s *Store) LoadAll(sessionID string) ([]Record, error) {
	return s.loadFile(s.SessionPath(sessionID))
}

func (s *Store) loadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open session log %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.log.Warn("skipping malformed session log line", "path", path, "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log %s: %w", path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// RewriteInPlace atomically replaces the session log's contents. Under the
// session file's lock it loads all records, applies transform, writes the
// result to a <file>.tmp sibling, and renames it over the original. A
// concurrent reader sees either the old or the new file, never a partial one.
func (s *Store) RewriteInPlace(sessionID string, transform func([]Record) ([]Record, error)) error {
	path := s.SessionPath(sessionID)

	return withLockPolicy(path, s.lockRetries, s.lockBackoff, func() error {
		records, err := s.loadFile(path)
		if err != nil {
			return err
		}

		updated, err := transform(records)
		if err != nil {
			return err
		}

		var sb strings.Builder
		for _, rec := range updated {
			line, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			sb.Write(line)
			sb.WriteByte('\n')
		}

		tmpPath := path + ".tmp"
		if err := os.WriteFile(tmpPath, []byte(sb.String()), 0644); err != nil {
			return fmt.Errorf("write temp log %s: %w", tmpPath, err)
		}
		if err := os.Rename(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("rename %s over %s: %w", tmpPath, path, err)
		}
		return nil
	})
}
