// Package adapter implements the short-lived client side: it makes sure a
// daemon is listening on the project's socket, connects, registers a session,
// and forwards the question operations over IPC.
package adapter

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/paths"
)

// Launcher starts a project's daemon on demand.
type Launcher struct {
	projectRoot string
	socketPath  string
	cfg         *config.Config
	log         *slog.Logger

	// spawn starts the daemon process; swapped out in tests.
	spawn func() error
}

// NewLauncher creates a launcher for projectRoot's daemon socket.
func NewLauncher(projectRoot string, cfg *config.Config) *Launcher {
	l := &Launcher{
		projectRoot: projectRoot,
		socketPath:  paths.SocketPath(projectRoot),
		cfg:         cfg,
		log:         logger.WithComponent("launcher"),
	}
	l.spawn = l.spawnDaemon
	return l
}

// SocketPath returns the daemon socket the launcher manages.
func (l *Launcher) SocketPath() string {
	return l.socketPath
}

// IsDaemonRunning probes the socket with a connect-then-close. Any failure
// means "not running"; it never returns an error.
func (l *Launcher) IsDaemonRunning() bool {
	conn, err := net.DialTimeout("unix", l.socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Ensure checks for a live daemon and spawns one only if absent, so repeated
// adapter startups are cheap when the daemon is already warm.
func (l *Launcher) Ensure() error {
	if l.IsDaemonRunning() {
		l.log.Debug("daemon already running", "socket", l.socketPath)
		return nil
	}
	return l.Launch()
}

// Launch spawns a detached daemon process and waits for its socket to
// appear, bounded by the configured startup timeout.
func (l *Launcher) Launch() error {
	if err := l.spawn(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	return l.waitForSocket()
}

// spawnDaemon re-executes this binary in daemon mode, detached in its own
// session with stdio discarded, keeping no handle that would block the
// adapter's exit.
func (l *Launcher) spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable: %w", err)
	}

	cmd := exec.Command(exe, "daemon", "--project-root", l.projectRoot)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}

	l.log.Info("spawned daemon", "pid", cmd.Process.Pid, "socket", l.socketPath)
	return cmd.Process.Release()
}

func (l *Launcher) waitForSocket() error {
	timeout := l.cfg.DaemonStartTimeout.Duration
	interval := l.cfg.SocketPollInterval.Duration
	deadline := time.Now().Add(timeout)

	for {
		if _, err := os.Stat(l.socketPath); err == nil {
			l.log.Debug("daemon socket appeared", "socket", l.socketPath)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon socket %s did not appear within %s", l.socketPath, timeout)
		}
		time.Sleep(interval)
	}
}
