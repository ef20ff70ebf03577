// Package storage implements the durable per-session question queue: an
// append-oriented JSONL log per session, mutated only through locked atomic
// rewrites.
package storage

import "time"

// Record types stored in a session log. Each line of the log is one Record.
const (
	RecordTypeQuestion = "question"
	RecordTypeAnswer   = "answer"
	RecordTypeSession  = "session"
)

// Question status values. Status only ever moves pending → answered.
const (
	StatusPending  = "pending"
	StatusAnswered = "answered"
)

// Record is a single line of a session log. The Type field determines which
// of the remaining fields are meaningful:
//
//   - "session": ID, Label, CreatedAt; written once when the log is created
//   - "question": ID, SessionID, Question, Context, ConversationID, Status,
//     CreatedAt, and once answered also Answer, AnsweredAt
//   - "answer": QuestionID, Answer, AnsweredAt; an immutable audit event
//     appended when a question is answered
type Record struct {
	Type           string `json:"type"`
	ID             string `json:"id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Label          string `json:"label,omitempty"`
	Question       string `json:"question,omitempty"`
	Context        string `json:"context,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	Answer         string `json:"answer,omitempty"`
	AnsweredAt     string `json:"answered_at,omitempty"`
	QuestionID     string `json:"question_id,omitempty"`
}

// Timestamp returns the record's best timestamp for chronological sorting.
func (r Record) Timestamp() string {
	if r.CreatedAt != "" {
		return r.CreatedAt
	}
	return r.AnsweredAt
}

// IsAnsweredQuestion reports whether r is a question record carrying an answer.
func (r Record) IsAnsweredQuestion() bool {
	return r.Type == RecordTypeQuestion && r.Status == StatusAnswered
}

// now returns the current time in the ISO-8601 form used throughout the logs.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
