package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/gsdkit/telegram-mcp/adapter"
	"github.com/gsdkit/telegram-mcp/daemon"
	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/storage"
)

// liveSessions asks a running daemon for its registry without registering a
// session of our own. Returns nil when no daemon is listening.
func liveSessions(ctx context.Context) ([]daemon.Session, error) {
	launcher := adapter.NewLauncher(projectRoot, cfg)
	if !launcher.IsDaemonRunning() {
		return nil, nil
	}

	client := ipc.NewClient(launcher.SocketPath())
	if err := client.Connect(); err != nil {
		return nil, err
	}
	defer client.Disconnect()

	raw, err := client.Request(ctx, ipc.MethodListSessions, nil, ipc.DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	var result struct {
		Sessions []daemon.Session `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live daemon sessions and on-disk session logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		live, err := liveSessions(cmd.Context())
		if err != nil {
			return err
		}

		store := storage.NewStore(projectRoot)
		logs, err := store.DiscoverSessions()
		if err != nil {
			return err
		}

		type logInfo struct {
			SessionID    string `json:"session_id"`
			Path         string `json:"path"`
			PendingCount int    `json:"pending_count"`
			ModifiedAt   string `json:"modified_at"`
		}
		infos := make([]logInfo, 0, len(logs))
		for _, l := range logs {
			pending, err := store.LoadPending(l.ID)
			if err != nil {
				return err
			}
			infos = append(infos, logInfo{
				SessionID:    l.ID,
				Path:         l.Path,
				PendingCount: len(pending),
				ModifiedAt:   time.Unix(l.ModTime, 0).UTC().Format(time.RFC3339),
			})
		}

		return printJSON(map[string]any{
			"live": live,
			"logs": infos,
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the project's daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		launcher := adapter.NewLauncher(projectRoot, cfg)
		return printJSON(map[string]any{
			"project_root": projectRoot,
			"socket":       launcher.SocketPath(),
			"running":      launcher.IsDaemonRunning(),
		})
	},
}
