package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/daemon"
	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/relay"
)

// Adapter is the RPC façade one caller process holds: a connected IPC client
// plus the session it registered with the daemon. Construct one per process;
// there are no package-level globals, so tests can run several side by side.
type Adapter struct {
	projectRoot string
	cfg         *config.Config
	log         *slog.Logger

	launcher *Launcher
	client   *ipc.Client
	session  daemon.Session
	started  bool
}

// New creates an adapter for projectRoot. Call Start before using it.
func New(projectRoot string, cfg *config.Config) *Adapter {
	launcher := NewLauncher(projectRoot, cfg)
	return &Adapter{
		projectRoot: projectRoot,
		cfg:         cfg,
		log:         logger.WithComponent("adapter"),
		launcher:    launcher,
		client:      ipc.NewClient(launcher.SocketPath()),
	}
}

// Session returns the session registered at Start.
func (a *Adapter) Session() daemon.Session {
	return a.session
}

// Start ensures a daemon is running, connects, and registers this process's
// session. Failures here are fatal to the adapter; there is nothing useful it
// can do without a daemon.
func (a *Adapter) Start(ctx context.Context) error {
	if a.started {
		return nil
	}

	if err := a.launcher.Ensure(); err != nil {
		return fmt.Errorf("ensure daemon: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return err
	}

	raw, err := a.client.Request(ctx, ipc.MethodRegisterSession,
		map[string]string{"project_root": a.projectRoot}, a.cfg.DefaultTimeout.Duration)
	if err != nil {
		a.client.Disconnect()
		return fmt.Errorf("register session: %w", err)
	}
	if err := json.Unmarshal(raw, &a.session); err != nil {
		a.client.Disconnect()
		return fmt.Errorf("decode session: %w", err)
	}

	a.started = true
	a.log.Info("session started",
		"session_id", a.session.ID,
		"label", a.session.Label)
	return nil
}

// Stop unregisters the session and closes the connection. Unregistration is
// best effort; daemon-side disconnect cleanup covers a lost request.
func (a *Adapter) Stop(ctx context.Context) {
	if a.started {
		_, err := a.client.Request(ctx, ipc.MethodUnregisterSession,
			map[string]string{"session_id": a.session.ID}, a.cfg.DefaultTimeout.Duration)
		if err != nil {
			a.log.Warn("unregister session failed", "error", err)
		}
	}
	a.client.Disconnect()
	a.started = false
}

// call forwards one operation with the method's computed timeout and decodes
// the result into out.
func (a *Adapter) call(ctx context.Context, method string, params, out any) error {
	if !a.started {
		return ipc.ErrNotConnected
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	raw, err := a.client.Request(ctx, method, params, ipc.MethodTimeout(method, encoded))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Ask queues a blocking question under this adapter's session.
func (a *Adapter) Ask(ctx context.Context, params relay.AskParams) (relay.AskResult, error) {
	var result relay.AskResult
	err := a.call(ctx, ipc.MethodAsk, params, &result)
	return result, err
}

// Check polls, optionally long-polling, for answered questions. The default
// wait is filled in here so the IPC timeout (wait plus a buffer) is always
// computed from the wait the daemon will actually use.
func (a *Adapter) Check(ctx context.Context, params relay.CheckParams) (relay.CheckResult, error) {
	if params.WaitSeconds == nil {
		wait := 60.0
		params.WaitSeconds = &wait
	}
	var result relay.CheckResult
	err := a.call(ctx, ipc.MethodCheck, params, &result)
	return result, err
}

// Mark confirms an already-answered question.
func (a *Adapter) Mark(ctx context.Context, params relay.MarkParams) (relay.MarkResult, error) {
	var result relay.MarkResult
	err := a.call(ctx, ipc.MethodMark, params, &result)
	return result, err
}

// UpdateStatus reports this session's state to the daemon.
func (a *Adapter) UpdateStatus(ctx context.Context, status, questionTitle string) (daemon.Session, error) {
	var session daemon.Session
	err := a.call(ctx, ipc.MethodUpdateSessionStatus, map[string]string{
		"session_id":     a.session.ID,
		"status":         status,
		"question_title": questionTitle,
	}, &session)
	return session, err
}

// Sessions lists every session active on the daemon.
func (a *Adapter) Sessions(ctx context.Context) ([]daemon.Session, error) {
	var result struct {
		Sessions []daemon.Session `json:"sessions"`
	}
	err := a.call(ctx, ipc.MethodListSessions, nil, &result)
	return result.Sessions, err
}

// Ping checks daemon liveness.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.call(ctx, ipc.MethodPing, nil, nil)
}
