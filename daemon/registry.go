// Package daemon runs the long-lived background process: an IPC server over
// the project's Unix socket, an in-memory session registry, and the relay
// operations backed by the durable session logs.
package daemon

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gsdkit/telegram-mcp/logger"
)

// Session statuses.
const (
	SessionIdle    = "idle"
	SessionWorking = "working"
	SessionWaiting = "waiting"
)

// Session is one active adapter connection's registration. Sessions are
// ephemeral for the lifetime of a daemon run; durable state lives in the
// session logs, not here.
type Session struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Status        string `json:"status"`
	QuestionTitle string `json:"question_title,omitempty"`
	ConnectedAt   string `json:"connected_at"`
}

// SessionEventKind distinguishes registry lifecycle events.
type SessionEventKind string

const (
	SessionConnected    SessionEventKind = "connected"
	SessionDisconnected SessionEventKind = "disconnected"
)

// SessionEvent is delivered on the registry's event channel so a messaging
// integration can react to sessions coming and going.
type SessionEvent struct {
	Kind    SessionEventKind
	Session Session
}

// Registry tracks active sessions in memory, keyed both by session id and by
// the IPC clientID of the underlying connection.
type Registry struct {
	log *slog.Logger

	mu              sync.Mutex
	sessions        map[string]Session
	counters        map[string]int
	clientToSession map[string]string

	events chan SessionEvent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:             logger.WithComponent("registry"),
		sessions:        make(map[string]Session),
		counters:        make(map[string]int),
		clientToSession: make(map[string]string),
		events:          make(chan SessionEvent, 16),
	}
}

// Events returns the lifecycle event channel. Events are dropped when no one
// is draining it; the registry never blocks on a slow consumer.
func (r *Registry) Events() <-chan SessionEvent {
	return r.events
}

// Register creates a session for the given IPC client. The label combines a
// short prefix from the project root's basename with a per-prefix counter,
// e.g. "myproj/3".
func (r *Registry) Register(clientID, projectRoot string) Session {
	r.mu.Lock()

	prefix := "agent"
	if base := filepath.Base(strings.TrimSpace(projectRoot)); base != "" && base != "." && base != string(filepath.Separator) {
		if len(base) > 6 {
			base = base[:6]
		}
		prefix = base
	}
	r.counters[prefix]++

	session := Session{
		ID:          uuid.NewString(),
		Label:       fmt.Sprintf("%s/%d", prefix, r.counters[prefix]),
		Status:      SessionIdle,
		ConnectedAt: time.Now().UTC().Format(time.RFC3339),
	}
	r.sessions[session.ID] = session
	r.clientToSession[clientID] = session.ID
	r.mu.Unlock()

	r.log.Info("session registered",
		"session_id", session.ID,
		"client_id", clientID,
		"label", session.Label)
	r.emit(SessionEvent{Kind: SessionConnected, Session: session})
	return session
}

// Unregister removes a session by id. Unknown ids are logged and reported,
// not treated as errors.
func (r *Registry) Unregister(sessionID string) (Session, bool) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		r.log.Warn("unregister of unknown session", "session_id", sessionID)
		return Session{}, false
	}
	delete(r.sessions, sessionID)
	for clientID, sid := range r.clientToSession {
		if sid == sessionID {
			delete(r.clientToSession, clientID)
			break
		}
	}
	r.mu.Unlock()

	r.log.Info("session unregistered", "session_id", sessionID, "label", session.Label)
	r.emit(SessionEvent{Kind: SessionDisconnected, Session: session})
	return session, true
}

// UnregisterClient removes whatever session the given connection registered,
// for disconnect cleanup.
func (r *Registry) UnregisterClient(clientID string) (Session, bool) {
	r.mu.Lock()
	sessionID, ok := r.clientToSession[clientID]
	r.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	return r.Unregister(sessionID)
}

// UpdateStatus changes a session's status. questionTitle is kept only while
// the session is waiting.
func (r *Registry) UpdateStatus(sessionID, status, questionTitle string) (Session, error) {
	switch status {
	case SessionIdle, SessionWorking, SessionWaiting:
	default:
		return Session{}, fmt.Errorf("invalid session status %q", status)
	}

	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Session{}, fmt.Errorf("session not found: %s", sessionID)
	}
	session.Status = status
	if status == SessionWaiting {
		session.QuestionTitle = questionTitle
	} else {
		session.QuestionTitle = ""
	}
	r.sessions[sessionID] = session
	r.mu.Unlock()

	r.log.Info("session status updated",
		"session_id", sessionID,
		"label", session.Label,
		"status", status)
	return session, nil
}

// Get returns a session by id.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	return session, ok
}

// ByClient returns the session registered by the given IPC connection.
func (r *Registry) ByClient(clientID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.clientToSession[clientID]
	if !ok {
		return Session{}, false
	}
	session, ok := r.sessions[sessionID]
	return session, ok
}

// All returns every active session.
func (r *Registry) All() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (r *Registry) emit(ev SessionEvent) {
	select {
	case r.events <- ev:
	default:
	}
}
