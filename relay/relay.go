// Package relay implements the question/answer operations the daemon exposes
// over IPC: asking a blocking question, long-polling for answers, and
// confirming an answered question. All state lives in the per-session JSONL
// logs managed by the storage package.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/logger"
	"github.com/gsdkit/telegram-mcp/storage"
)

// ValidationError reports a rejected request parameter. It carries the
// VALIDATION_ERROR code into IPC response envelopes.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string     { return e.Msg }
func (e *ValidationError) ErrorCode() string { return ipc.CodeValidation }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Relay serves the question operations for a project's session store.
type Relay struct {
	store *storage.Store
	cfg   *config.Config
	log   *slog.Logger

	// wake, when set, delivers session ids whose logs just changed so a
	// long poll can re-check before its next scheduled interval.
	wake <-chan string
}

// New creates a Relay over store with cfg's timing parameters.
func New(store *storage.Store, cfg *config.Config) *Relay {
	return &Relay{
		store: store,
		cfg:   cfg,
		log:   logger.WithComponent("relay"),
	}
}

// SetWakeup wires a change-notification channel (typically from a
// storage.Watcher) into the long-poll loop. Purely an optimization: polling
// alone still satisfies every timing bound.
func (r *Relay) SetWakeup(ch <-chan string) {
	r.wake = ch
}

// AskParams are the caller-supplied fields of ask_blocking_question.
type AskParams struct {
	Question       string   `json:"question"`
	Context        string   `json:"context,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	TimeoutMinutes *float64 `json:"timeout_minutes,omitempty"`
}

// AskResult acknowledges a queued question. The caller is expected to poll
// for the answer with Check; the ask itself never waits.
type AskResult struct {
	QuestionID string `json:"question_id"`
	AskedAt    string `json:"asked_at"`
	Status     string `json:"status"`
}

// Ask validates and appends a new pending question to the session's log.
func (r *Relay) Ask(sessionID string, params AskParams) (AskResult, error) {
	if strings.TrimSpace(params.Question) == "" {
		return AskResult{}, validationErrorf("question text must not be empty")
	}
	if params.TimeoutMinutes != nil && *params.TimeoutMinutes <= 0 {
		return AskResult{}, validationErrorf("timeout_minutes must be positive, got %v", *params.TimeoutMinutes)
	}

	rec, err := r.store.AppendQuestion(sessionID, storage.QuestionInput{
		Question:       params.Question,
		Context:        params.Context,
		ConversationID: params.ConversationID,
	})
	if err != nil {
		return AskResult{}, fmt.Errorf("queue question: %w", err)
	}

	r.log.Info("question queued",
		"session_id", sessionID,
		"question_id", rec.ID)

	return AskResult{
		QuestionID: rec.ID,
		AskedAt:    rec.CreatedAt,
		Status:     rec.Status,
	}, nil
}

// CheckParams are the caller-supplied fields of check_question_answers.
type CheckParams struct {
	QuestionIDs []string `json:"question_ids,omitempty"`
	WaitSeconds *float64 `json:"wait_seconds,omitempty"`
}

// Answer is one answered question returned by Check.
type Answer struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	AnsweredAt string `json:"answered_at"`
}

// CheckResult reports any matching answers plus the session's current count
// of still-pending questions, which ignores the id filter.
type CheckResult struct {
	Answers      []Answer `json:"answers"`
	PendingCount int      `json:"pending_count"`
}

// Check returns answered questions from the session's log, long-polling up
// to wait_seconds (default 60, capped by config) when none are available
// yet. An empty answer list after the full wait is a normal result, not an
// error.
func (r *Relay) Check(ctx context.Context, sessionID string, params CheckParams) (CheckResult, error) {
	waitSeconds := 60.0
	if params.WaitSeconds != nil {
		waitSeconds = *params.WaitSeconds
	}
	if waitSeconds < 0 {
		waitSeconds = 0
	}
	if max := float64(r.cfg.MaxWaitSeconds); waitSeconds > max {
		waitSeconds = max
	}

	deadline := time.Now().Add(time.Duration(waitSeconds * float64(time.Second)))
	interval := r.cfg.PollInterval.Duration

	log := logger.WithSession(sessionID)
	log.Debug("checking for answers",
		"wait_seconds", waitSeconds,
		"id_filter", len(params.QuestionIDs))

	for {
		result, err := r.snapshot(sessionID, params.QuestionIDs)
		if err != nil {
			return CheckResult{}, err
		}
		if len(result.Answers) > 0 {
			return result, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return result, nil
		}

		// The last iteration sleeps the exact remainder and does one final
		// check, so the total wait never rounds up to a full interval.
		step := interval
		if remaining < step {
			step = remaining
		}
		if err := r.waitForChange(ctx, sessionID, step); err != nil {
			return CheckResult{}, err
		}
	}
}

func (r *Relay) snapshot(sessionID string, idFilter []string) (CheckResult, error) {
	questions, err := r.store.LoadQuestions(sessionID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	wanted := make(map[string]bool, len(idFilter))
	for _, id := range idFilter {
		wanted[id] = true
	}

	result := CheckResult{Answers: []Answer{}}
	for _, q := range questions {
		if !q.IsAnsweredQuestion() {
			result.PendingCount++
			continue
		}
		if len(wanted) > 0 && !wanted[q.ID] {
			continue
		}
		result.Answers = append(result.Answers, Answer{
			QuestionID: q.ID,
			Question:   q.Question,
			Answer:     q.Answer,
			AnsweredAt: q.AnsweredAt,
		})
	}
	return result, nil
}

// waitForChange sleeps up to d, returning early if the session's log changes
// or ctx is cancelled.
func (r *Relay) waitForChange(ctx context.Context, sessionID string, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	wake := r.wake
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case changed, ok := <-wake:
			if !ok {
				// Watcher gone; fall back to plain interval polling.
				wake = nil
				continue
			}
			if changed == sessionID {
				return nil
			}
		}
	}
}

// MarkParams are the caller-supplied fields of mark_question_answered.
type MarkParams struct {
	QuestionID string `json:"question_id"`
}

// MarkResult confirms an answered question. ArchivedTo names the session log
// the records live in; nothing is moved or deleted.
type MarkResult struct {
	Success    bool   `json:"success"`
	ArchivedTo string `json:"archived_to"`
}

// Mark verifies that a question exists in the session and has been answered
// with actual answer text. Still-pending or answerless questions are
// validation errors, not silent no-ops.
func (r *Relay) Mark(sessionID string, params MarkParams) (MarkResult, error) {
	if strings.TrimSpace(params.QuestionID) == "" {
		return MarkResult{}, validationErrorf("question_id must not be empty")
	}

	q, err := r.store.QuestionByID(sessionID, params.QuestionID)
	if err != nil {
		if errors.Is(err, storage.ErrQuestionNotFound) {
			return MarkResult{}, validationErrorf("question %s not found in session %s", params.QuestionID, sessionID)
		}
		return MarkResult{}, fmt.Errorf("load question %s: %w", params.QuestionID, err)
	}

	if q.Status != storage.StatusAnswered {
		return MarkResult{}, validationErrorf("question %s is still %s, not answered", q.ID, q.Status)
	}
	if strings.TrimSpace(q.Answer) == "" {
		return MarkResult{}, validationErrorf("question %s is marked answered but has no answer text", q.ID)
	}

	r.log.Info("question confirmed answered",
		"session_id", sessionID,
		"question_id", q.ID)

	return MarkResult{
		Success:    true,
		ArchivedTo: r.store.SessionPath(sessionID),
	}, nil
}
