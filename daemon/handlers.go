package daemon

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/relay"
)

func (d *Daemon) registerHandlers() {
	d.server.Handle(ipc.MethodPing, d.handlePing)
	d.server.Handle(ipc.MethodRegisterSession, d.handleRegisterSession)
	d.server.Handle(ipc.MethodUnregisterSession, d.handleUnregisterSession)
	d.server.Handle(ipc.MethodUpdateSessionStatus, d.handleUpdateSessionStatus)
	d.server.Handle(ipc.MethodListSessions, d.handleListSessions)
	d.server.Handle(ipc.MethodAsk, d.handleAsk)
	d.server.Handle(ipc.MethodCheck, d.handleCheck)
	d.server.Handle(ipc.MethodMark, d.handleMark)
}

// sessionFor resolves the session registered by the requesting connection.
func (d *Daemon) sessionFor(clientID string) (Session, error) {
	session, ok := d.registry.ByClient(clientID)
	if !ok {
		return Session{}, &relay.ValidationError{Msg: "no session registered for this connection; call register_session first"}
	}
	return session, nil
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var p T
	if len(params) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, fmt.Errorf("decode params: %w", err)
	}
	return p, nil
}

func (d *Daemon) handlePing(clientID string, params json.RawMessage) (any, error) {
	return map[string]any{"status": "ok", "pid": os.Getpid()}, nil
}

func (d *Daemon) handleRegisterSession(clientID string, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		ProjectRoot string `json:"project_root,omitempty"`
	}](params)
	if err != nil {
		return nil, err
	}
	return d.registry.Register(clientID, p.ProjectRoot), nil
}

func (d *Daemon) handleUnregisterSession(clientID string, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		SessionID string `json:"session_id"`
	}](params)
	if err != nil {
		return nil, err
	}
	_, removed := d.registry.Unregister(p.SessionID)
	return map[string]bool{"success": removed}, nil
}

func (d *Daemon) handleUpdateSessionStatus(clientID string, params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		SessionID     string `json:"session_id"`
		Status        string `json:"status"`
		QuestionTitle string `json:"question_title,omitempty"`
	}](params)
	if err != nil {
		return nil, err
	}
	session, err := d.registry.UpdateStatus(p.SessionID, p.Status, p.QuestionTitle)
	if err != nil {
		return nil, &relay.ValidationError{Msg: err.Error()}
	}
	return session, nil
}

func (d *Daemon) handleListSessions(clientID string, params json.RawMessage) (any, error) {
	return map[string]any{"sessions": d.registry.All()}, nil
}

func (d *Daemon) handleAsk(clientID string, params json.RawMessage) (any, error) {
	session, err := d.sessionFor(clientID)
	if err != nil {
		return nil, err
	}
	p, err := decodeParams[relay.AskParams](params)
	if err != nil {
		return nil, err
	}

	result, err := d.relay.Ask(session.ID, p)
	if err != nil {
		return nil, err
	}
	d.registry.UpdateStatus(session.ID, SessionWaiting, p.Question)
	return result, nil
}

func (d *Daemon) handleCheck(clientID string, params json.RawMessage) (any, error) {
	session, err := d.sessionFor(clientID)
	if err != nil {
		return nil, err
	}
	p, err := decodeParams[relay.CheckParams](params)
	if err != nil {
		return nil, err
	}
	return d.relay.Check(d.shutdownCtx, session.ID, p)
}

func (d *Daemon) handleMark(clientID string, params json.RawMessage) (any, error) {
	session, err := d.sessionFor(clientID)
	if err != nil {
		return nil, err
	}
	p, err := decodeParams[relay.MarkParams](params)
	if err != nil {
		return nil, err
	}

	result, err := d.relay.Mark(session.ID, p)
	if err != nil {
		return nil, err
	}
	d.registry.UpdateStatus(session.ID, SessionWorking, "")
	return result, nil
}
