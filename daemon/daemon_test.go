package daemon

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/ipc"
	"github.com/gsdkit/telegram-mcp/storage"
)

func TestRegistryLabels(t *testing.T) {
	r := NewRegistry()

	first := r.Register("client-1", "/home/dev/myproject")
	second := r.Register("client-2", "/home/dev/myproject")
	other := r.Register("client-3", "/home/dev/webapp")
	unrooted := r.Register("client-4", "")

	assert.Equal(t, "myproj/1", first.Label)
	assert.Equal(t, "myproj/2", second.Label)
	assert.Equal(t, "webapp/1", other.Label)
	assert.Equal(t, "agent/1", unrooted.Label)

	assert.Equal(t, SessionIdle, first.Status)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	session := r.Register("client-1", "/proj")

	removed, ok := r.Unregister(session.ID)
	assert.True(t, ok)
	assert.Equal(t, session.ID, removed.ID)

	_, ok = r.Get(session.ID)
	assert.False(t, ok)
	_, ok = r.ByClient("client-1")
	assert.False(t, ok)

	_, ok = r.Unregister("missing")
	assert.False(t, ok)
}

func TestRegistryUnregisterClient(t *testing.T) {
	r := NewRegistry()
	session := r.Register("client-1", "/proj")

	removed, ok := r.UnregisterClient("client-1")
	assert.True(t, ok)
	assert.Equal(t, session.ID, removed.ID)

	_, ok = r.UnregisterClient("client-1")
	assert.False(t, ok)
}

func TestRegistryUpdateStatus(t *testing.T) {
	r := NewRegistry()
	session := r.Register("client-1", "/proj")

	updated, err := r.UpdateStatus(session.ID, SessionWaiting, "deploy?")
	require.NoError(t, err)
	assert.Equal(t, SessionWaiting, updated.Status)
	assert.Equal(t, "deploy?", updated.QuestionTitle)

	// Leaving the waiting state drops the question title.
	updated, err = r.UpdateStatus(session.ID, SessionWorking, "")
	require.NoError(t, err)
	assert.Equal(t, SessionWorking, updated.Status)
	assert.Empty(t, updated.QuestionTitle)

	_, err = r.UpdateStatus(session.ID, "bogus", "")
	assert.Error(t, err)

	_, err = r.UpdateStatus("missing", SessionIdle, "")
	assert.Error(t, err)
}

func TestRegistryEvents(t *testing.T) {
	r := NewRegistry()

	session := r.Register("client-1", "/proj")
	r.Unregister(session.ID)

	ev := <-r.Events()
	assert.Equal(t, SessionConnected, ev.Kind)
	assert.Equal(t, session.ID, ev.Session.ID)

	ev = <-r.Events()
	assert.Equal(t, SessionDisconnected, ev.Kind)
	assert.Equal(t, session.ID, ev.Session.ID)
}

func startTestDaemon(t *testing.T) (*Daemon, *storage.Store, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.PollInterval = config.Duration{Duration: 200 * time.Millisecond}

	d := New(root, cfg)
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)

	return d, storage.NewStore(root), root
}

func connectClient(t *testing.T, socketPath string) *ipc.Client {
	t.Helper()
	client := ipc.NewClient(socketPath)
	require.NoError(t, client.Connect())
	t.Cleanup(client.Disconnect)
	return client
}

func TestDaemonQuestionLifecycle(t *testing.T) {
	d, store, root := startTestDaemon(t)
	client := connectClient(t, d.SocketPath())
	ctx := context.Background()

	// ping
	raw, err := client.Request(ctx, ipc.MethodPing, nil, time.Second)
	require.NoError(t, err)
	var ping map[string]any
	require.NoError(t, json.Unmarshal(raw, &ping))
	assert.Equal(t, "ok", ping["status"])

	// register_session
	raw, err = client.Request(ctx, ipc.MethodRegisterSession,
		map[string]string{"project_root": root}, time.Second)
	require.NoError(t, err)
	var session Session
	require.NoError(t, json.Unmarshal(raw, &session))
	assert.NotEmpty(t, session.ID)

	// ask_blocking_question
	raw, err = client.Request(ctx, ipc.MethodAsk,
		map[string]any{"question": "Proceed with migration?", "timeout_minutes": 5},
		5*time.Second)
	require.NoError(t, err)
	var asked struct {
		QuestionID string `json:"question_id"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(raw, &asked))
	assert.Equal(t, storage.StatusPending, asked.Status)

	// The registry reflects the outstanding question.
	got, ok := d.Registry().Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, SessionWaiting, got.Status)
	assert.Equal(t, "Proceed with migration?", got.QuestionTitle)

	// An external writer answers through the shared log.
	require.NoError(t, store.MarkAnswered(session.ID, asked.QuestionID, "yes"))

	// check_question_answers sees the answer.
	raw, err = client.Request(ctx, ipc.MethodCheck,
		map[string]any{"question_ids": []string{asked.QuestionID}, "wait_seconds": 10},
		15*time.Second)
	require.NoError(t, err)
	var checked struct {
		Answers []struct {
			QuestionID string `json:"question_id"`
			Answer     string `json:"answer"`
		} `json:"answers"`
		PendingCount int `json:"pending_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &checked))
	require.Len(t, checked.Answers, 1)
	assert.Equal(t, asked.QuestionID, checked.Answers[0].QuestionID)
	assert.Equal(t, "yes", checked.Answers[0].Answer)
	assert.Equal(t, 0, checked.PendingCount)

	// mark_question_answered confirms it.
	raw, err = client.Request(ctx, ipc.MethodMark,
		map[string]string{"question_id": asked.QuestionID}, 5*time.Second)
	require.NoError(t, err)
	var marked struct {
		Success    bool   `json:"success"`
		ArchivedTo string `json:"archived_to"`
	}
	require.NoError(t, json.Unmarshal(raw, &marked))
	assert.True(t, marked.Success)
	assert.Equal(t, store.SessionPath(session.ID), marked.ArchivedTo)

	// unregister_session
	raw, err = client.Request(ctx, ipc.MethodUnregisterSession,
		map[string]string{"session_id": session.ID}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, string(raw))
	assert.Empty(t, d.Registry().All())
}

func TestDaemonRejectsAskWithoutSession(t *testing.T) {
	d, _, _ := startTestDaemon(t)
	client := connectClient(t, d.SocketPath())

	_, err := client.Request(context.Background(), ipc.MethodAsk,
		map[string]string{"question": "hello?"}, time.Second)
	require.Error(t, err)

	var remote *ipc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, ipc.CodeValidation, remote.Code)
}

func TestDaemonCleansSessionOnDisconnect(t *testing.T) {
	d, _, root := startTestDaemon(t)

	client := ipc.NewClient(d.SocketPath())
	require.NoError(t, client.Connect())
	_, err := client.Request(context.Background(), ipc.MethodRegisterSession,
		map[string]string{"project_root": root}, time.Second)
	require.NoError(t, err)
	require.Len(t, d.Registry().All(), 1)

	client.Disconnect()

	require.Eventually(t, func() bool {
		return len(d.Registry().All()) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDaemonListSessions(t *testing.T) {
	d, _, root := startTestDaemon(t)
	ctx := context.Background()

	first := connectClient(t, d.SocketPath())
	second := connectClient(t, d.SocketPath())
	for _, client := range []*ipc.Client{first, second} {
		_, err := client.Request(ctx, ipc.MethodRegisterSession,
			map[string]string{"project_root": root}, time.Second)
		require.NoError(t, err)
	}

	raw, err := first.Request(ctx, ipc.MethodListSessions, nil, time.Second)
	require.NoError(t, err)
	var listed struct {
		Sessions []Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed.Sessions, 2)
}
