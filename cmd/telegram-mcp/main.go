// telegram-mcp is the command-line entry point for both halves of the
// question relay: `telegram-mcp daemon` runs the long-lived background
// process, while the other subcommands act as short-lived adapters that
// ensure a daemon is up and forward one operation over IPC.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/paths"
)

var (
	flagProjectRoot string
	flagDebug       bool

	projectRoot string
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "telegram-mcp",
	Short: "Durable blocking-question relay between a coding agent and a human",
	Long: `telegram-mcp relays blocking questions from an automated caller to a human
who answers them out of band, minutes or hours later.

Questions are persisted per session as line-delimited JSON under
.planning/telegram-sessions/ in the project root. A per-project daemon owns
the session state and serves adapters over a Unix domain socket; adapters
spawn the daemon on demand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; ignore a missing file.
		godotenv.Load()

		projectRoot = paths.ResolveRoot(flagProjectRoot)

		var err error
		cfg, err = config.Load(projectRoot)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if flagDebug {
			cfg.Debug = true
		}
		logger.SetDebug(cfg.Debug)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProjectRoot, "project-root", "",
		"project root (defaults to $PROJECT_ROOT, then the working directory)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false,
		"enable debug logging")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(markCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
