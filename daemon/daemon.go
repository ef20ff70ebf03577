package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/paths"
	"github.com/gsdkit/telegram-mcp/relay"
	"github.com/gsdkit/telegram-mcp/storage"
)

// Daemon wires the IPC server, session registry, relay operations, and the
// session-log change watcher together for one project root.
type Daemon struct {
	projectRoot string
	cfg         *config.Config
	log         *slog.Logger

	store    *storage.Store
	registry *Registry
	relay    *relay.Relay
	server   *ipc.Server
	watcher  *storage.Watcher

	// shutdownCtx cancels in-flight long polls so Stop is not held hostage
	// by a check_question_answers with a generous wait.
	shutdownCtx context.Context
	shutdown    context.CancelFunc
}

// New builds a daemon for projectRoot. Nothing is bound until Start.
func New(projectRoot string, cfg *config.Config) *Daemon {
	store := storage.NewStore(projectRoot)
	store.SetLockPolicy(cfg.LockRetries, cfg.LockBackoff.Duration)
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	d := &Daemon{
		shutdownCtx: shutdownCtx,
		shutdown:    shutdown,
		projectRoot: projectRoot,
		cfg:         cfg,
		log:         logger.WithComponent("daemon"),
		store:       store,
		registry:    NewRegistry(),
		relay:       relay.New(store, cfg),
		server:      ipc.NewServer(paths.SocketPath(projectRoot)),
	}
	d.registerHandlers()
	d.server.OnDisconnect(func(clientID string) {
		d.registry.UnregisterClient(clientID)
	})
	return d
}

// Registry exposes the session registry, mainly so a messaging integration
// can subscribe to lifecycle events.
func (d *Daemon) Registry() *Registry {
	return d.registry
}

// SocketPath returns the Unix socket this daemon serves on.
func (d *Daemon) SocketPath() string {
	return d.server.SocketPath()
}

// Start binds the socket and begins serving. The log watcher is a best-effort
// optimization; if it cannot start, long polls fall back to plain intervals.
func (d *Daemon) Start() error {
	watcher, err := storage.NewWatcher(d.projectRoot)
	if err != nil {
		d.log.Warn("log watcher unavailable, long polls use interval only", "error", err)
	} else {
		d.watcher = watcher
		d.relay.SetWakeup(watcher.Changes())
	}

	if err := d.server.Listen(); err != nil {
		if d.watcher != nil {
			d.watcher.Close()
		}
		return fmt.Errorf("start daemon: %w", err)
	}
	go d.server.Serve()

	d.log.Info("daemon started",
		"project_root", d.projectRoot,
		"socket", d.SocketPath())
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop closes the IPC server and the watcher. Active connections are cut;
// their adapters will fail pending requests explicitly.
func (d *Daemon) Stop() {
	d.shutdown()
	d.server.Close()
	if d.watcher != nil {
		d.watcher.Close()
	}
	d.log.Info("daemon stopped")
}
