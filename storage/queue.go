package storage

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gsdkit/telegram-mcp/paths"
)

// ErrQuestionNotFound is returned when a question id does not exist in the
// session it was looked up in.
var ErrQuestionNotFound = errors.New("question not found")

// QuestionInput carries the caller-supplied fields of a new question.
type QuestionInput struct {
	Question       string
	Context        string
	ConversationID string
}

// SessionInfo describes one discovered session log on disk.
type SessionInfo struct {
	ID      string
	Path    string
	ModTime int64 // unix seconds, for most-recent-first ordering
}

// AppendQuestion creates a new pending question in the session's log and
// returns the full record with generated id and timestamp.
func (s *Store) AppendQuestion(sessionID string, in QuestionInput) (Record, error) {
	rec := Record{
		Type:           RecordTypeQuestion,
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		Question:       strings.TrimSpace(in.Question),
		Context:        strings.TrimSpace(in.Context),
		ConversationID: in.ConversationID,
		Status:         StatusPending,
		CreatedAt:      now(),
	}
	if err := s.Append(sessionID, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// LoadQuestions returns all question records in the session, in log order.
func (s *Store) LoadQuestions(sessionID string) ([]Record, error) {
	records, err := s.LoadAll(sessionID)
	if err != nil {
		return nil, err
	}
	var questions []Record
	for _, rec := range records {
		if rec.Type == RecordTypeQuestion {
			questions = append(questions, rec)
		}
	}
	return questions, nil
}

// LoadPending returns the session's questions still awaiting an answer.
func (s *Store) LoadPending(sessionID string) ([]Record, error) {
	questions, err := s.LoadQuestions(sessionID)
	if err != nil {
		return nil, err
	}
	var pending []Record
	for _, q := range questions {
		if q.Status == StatusPending {
			pending = append(pending, q)
		}
	}
	return pending, nil
}

// QuestionByID returns the question record with the given id, pending or
// answered. Returns ErrQuestionNotFound if no such question exists in the
// session.
func (s *Store) QuestionByID(sessionID, questionID string) (Record, error) {
	questions, err := s.LoadQuestions(sessionID)
	if err != nil {
		return Record{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s in session %s", ErrQuestionNotFound, questionID, sessionID)
}

// MarkAnswered flips the question's status to answered in place and appends
// the corresponding immutable answer event, all under one lock and one atomic
// rewrite. This is the write path the external answer-writer (the messaging
// bot) uses too.
func (s *Store) MarkAnswered(sessionID, questionID, answer string) error {
	answeredAt := now()
	return s.RewriteInPlace(sessionID, func(records []Record) ([]Record, error) {
		updated := false
		for i, rec := range records {
			if rec.Type != RecordTypeQuestion || rec.ID != questionID {
				continue
			}
			records[i].Status = StatusAnswered
			records[i].Answer = answer
			records[i].AnsweredAt = answeredAt
			updated = true
			break
		}
		if !updated {
			return nil, fmt.Errorf("%w: %s in session %s", ErrQuestionNotFound, questionID, sessionID)
		}

		records = append(records, Record{
			Type:       RecordTypeAnswer,
			QuestionID: questionID,
			Answer:     answer,
			AnsweredAt: answeredAt,
		})
		return records, nil
	})
}

// CreateSession starts a new session log with a session-lifecycle record as
// its first line and returns the generated session id.
func (s *Store) CreateSession(label string) (string, error) {
	sessionID := uuid.NewString()
	rec := Record{
		Type:      RecordTypeSession,
		ID:        sessionID,
		Label:     label,
		CreatedAt: now(),
	}
	if err := s.Append(sessionID, rec); err != nil {
		return "", err
	}
	return sessionID, nil
}

// DiscoverSessions lists all session logs under the project's sessions
// directory, most recently modified first.
func (s *Store) DiscoverSessions() ([]SessionInfo, error) {
	dir := paths.SessionsDir(s.root)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []SessionInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir %s: %w", dir, err)
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		sessions = append(sessions, SessionInfo{
			ID:      id,
			Path:    s.SessionPath(id),
			ModTime: info.ModTime().Unix(),
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ModTime > sessions[j].ModTime
	})
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	return sessions, nil
}

// LoadAllPending returns pending questions across every discovered session.
// This is the read surface the messaging bot uses to show open questions.
func (s *Store) LoadAllPending() ([]Record, error) {
	sessions, err := s.DiscoverSessions()
	if err != nil {
		return nil, err
	}
	var all []Record
	for _, sess := range sessions {
		pending, err := s.LoadPending(sess.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, pending...)
	}
	return all, nil
}

// ConversationMessages returns the session's records with a matching
// conversation id, sorted chronologically. Used to reconstruct multi-turn
// conversations.
func (s *Store) ConversationMessages(sessionID, conversationID string) ([]Record, error) {
	records, err := s.LoadAll(sessionID)
	if err != nil {
		return nil, err
	}
	var matching []Record
	for _, rec := range records {
		if rec.ConversationID == conversationID {
			matching = append(matching, rec)
		}
	}
	sortChronological(matching)
	return matching, nil
}

// ConversationEntries groups the session's records by conversation id.
// Records without one land under the "ungrouped" key. Each group is sorted
// chronologically.
func (s *Store) ConversationEntries(sessionID string) (map[string][]Record, error) {
	records, err := s.LoadAll(sessionID)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Record)
	for _, rec := range records {
		key := rec.ConversationID
		if key == "" {
			key = "ungrouped"
		}
		grouped[key] = append(grouped[key], rec)
	}
	for _, group := range grouped {
		sortChronological(group)
	}
	return grouped, nil
}

func sortChronological(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp() < records[j].Timestamp()
	})
}
