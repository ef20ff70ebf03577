package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gsdkit/telegram-mcp/adapter"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/relay"
)

var (
	askQuestion       string
	askContext        string
	askConversationID string
	askTimeoutMinutes float64

	checkQuestionIDs []string
	checkWaitSeconds float64

	markQuestionID string
)

// withAdapter runs fn against a started adapter, tearing the session down
// afterwards.
func withAdapter(ctx context.Context, fn func(*adapter.Adapter) error) error {
	if err := logger.Init(logger.AdapterLogPath(projectRoot)); err != nil {
		fmt.Fprintln(os.Stderr, "log file unavailable:", err)
	}

	a := adapter.New(projectRoot, cfg)
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)
	return fn(a)
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Queue a blocking question for the human to answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdapter(cmd.Context(), func(a *adapter.Adapter) error {
			params := relay.AskParams{
				Question:       askQuestion,
				Context:        askContext,
				ConversationID: askConversationID,
			}
			if cmd.Flags().Changed("timeout-minutes") {
				params.TimeoutMinutes = &askTimeoutMinutes
			}

			result, err := a.Ask(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Poll for answered questions, optionally long-polling",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdapter(cmd.Context(), func(a *adapter.Adapter) error {
			params := relay.CheckParams{QuestionIDs: checkQuestionIDs}
			if cmd.Flags().Changed("wait") {
				params.WaitSeconds = &checkWaitSeconds
			}

			result, err := a.Check(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var markCmd = &cobra.Command{
	Use:   "mark",
	Short: "Confirm a question as answered",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdapter(cmd.Context(), func(a *adapter.Adapter) error {
			result, err := a.Mark(cmd.Context(), relay.MarkParams{QuestionID: markQuestionID})
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

func init() {
	askCmd.Flags().StringVar(&askQuestion, "question", "", "question text (required)")
	askCmd.Flags().StringVar(&askContext, "context", "", "extra context shown with the question")
	askCmd.Flags().StringVar(&askConversationID, "conversation", "", "conversation id to group related questions")
	askCmd.Flags().Float64Var(&askTimeoutMinutes, "timeout-minutes", 30, "how long the caller intends to wait")
	askCmd.MarkFlagRequired("question")

	checkCmd.Flags().StringSliceVar(&checkQuestionIDs, "id", nil, "restrict to these question ids (repeatable)")
	checkCmd.Flags().Float64Var(&checkWaitSeconds, "wait", 60, "seconds to long-poll for an answer (0 = single check)")

	markCmd.Flags().StringVar(&markQuestionID, "id", "", "question id (required)")
	markCmd.MarkFlagRequired("id")
}
