package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gsdkit/telegram-mcp/daemon"
	"github.com/gsdkit/telegram-mcp/logger"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the question-relay daemon in the foreground",
	Long: `Runs the long-lived daemon for the current project root. Adapters normally
spawn this automatically; running it by hand is useful for debugging.

The daemon binds the project's Unix socket, serves IPC requests, and shuts
down cleanly on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init(logger.DaemonLogPath(projectRoot)); err != nil {
			fmt.Fprintln(os.Stderr, "log file unavailable:", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d := daemon.New(projectRoot, cfg)
		return d.Run(ctx)
	},
}
