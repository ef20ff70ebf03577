package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gsdkit/telegram-mcp/storage"
)

var (
	answerSessionID  string
	answerQuestionID string
	answerText       string
)

// answerCmd is the external writer path: it writes an answer straight into
// the durable session log, the same way a messaging-channel integration
// would. No daemon is needed; the caller's next poll observes the write.
var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Answer a pending question directly in the session log",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := storage.NewStore(projectRoot)
		store.SetLockPolicy(cfg.LockRetries, cfg.LockBackoff.Duration)

		sessionID := answerSessionID
		if sessionID == "" {
			var err error
			sessionID, err = mostRecentSession(store)
			if err != nil {
				return err
			}
		}

		if err := store.MarkAnswered(sessionID, answerQuestionID, answerText); err != nil {
			return err
		}
		return printJSON(map[string]any{
			"success":     true,
			"session_id":  sessionID,
			"question_id": answerQuestionID,
		})
	},
}

// mostRecentSession picks the newest session log when none was named.
func mostRecentSession(store *storage.Store) (string, error) {
	sessions, err := store.DiscoverSessions()
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("no session logs found under %s", store.Root())
	}
	return sessions[0].ID, nil
}

func init() {
	answerCmd.Flags().StringVar(&answerSessionID, "session", "", "session id (defaults to the most recent session)")
	answerCmd.Flags().StringVar(&answerQuestionID, "id", "", "question id (required)")
	answerCmd.Flags().StringVar(&answerText, "text", "", "answer text (required)")
	answerCmd.MarkFlagRequired("id")
	answerCmd.MarkFlagRequired("text")
}
