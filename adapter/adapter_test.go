package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsdkit/telegram-mcp/config"
	"github.com/gsdkit/telegram-mcp/daemon"
	"github.com/gsdkit/telegram-mcp/relay"
	"github.com/gsdkit/telegram-mcp/storage"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PollInterval = config.Duration{Duration: 200 * time.Millisecond}
	cfg.DaemonStartTimeout = config.Duration{Duration: 2 * time.Second}
	cfg.SocketPollInterval = config.Duration{Duration: 50 * time.Millisecond}
	return cfg
}

func startInProcessDaemon(t *testing.T, root string, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d := daemon.New(root, cfg)
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)
	return d
}

func TestIsDaemonRunning(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	launcher := NewLauncher(root, cfg)

	assert.False(t, launcher.IsDaemonRunning())

	startInProcessDaemon(t, root, cfg)
	assert.True(t, launcher.IsDaemonRunning())
}

func TestEnsureSpawnsNothingWhenDaemonWarm(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	startInProcessDaemon(t, root, cfg)

	launcher := NewLauncher(root, cfg)
	spawned := 0
	launcher.spawn = func() error {
		spawned++
		return nil
	}

	require.NoError(t, launcher.Ensure())
	require.NoError(t, launcher.Ensure())
	assert.Equal(t, 0, spawned)
}

func TestEnsureSpawnsWhenDaemonAbsent(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()

	launcher := NewLauncher(root, cfg)
	spawned := 0
	launcher.spawn = func() error {
		spawned++
		// Bring the daemon up out of band, as the real spawn would.
		startInProcessDaemon(t, root, cfg)
		return nil
	}

	require.NoError(t, launcher.Ensure())
	assert.Equal(t, 1, spawned)

	require.NoError(t, launcher.Ensure())
	assert.Equal(t, 1, spawned)
}

func TestLaunchWaitsForSocket(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()

	launcher := NewLauncher(root, cfg)
	launcher.spawn = func() error {
		go func() {
			time.Sleep(300 * time.Millisecond)
			startInProcessDaemon(t, root, cfg)
		}()
		return nil
	}

	start := time.Now()
	require.NoError(t, launcher.Launch())
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}

func TestLaunchTimesOutWithPathAndDuration(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	cfg.DaemonStartTimeout = config.Duration{Duration: 300 * time.Millisecond}

	launcher := NewLauncher(root, cfg)
	launcher.spawn = func() error { return nil }

	err := launcher.Launch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), launcher.SocketPath())
	assert.Contains(t, err.Error(), "300ms")
}

func TestAdapterLifecycle(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	d := startInProcessDaemon(t, root, cfg)
	ctx := context.Background()

	a := New(root, cfg)
	require.NoError(t, a.Start(ctx))
	defer a.Stop(ctx)

	require.NoError(t, a.Ping(ctx))
	assert.NotEmpty(t, a.Session().ID)
	assert.NotEmpty(t, a.Session().Label)

	asked, err := a.Ask(ctx, relay.AskParams{Question: "Proceed with migration?"})
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, asked.Status)

	// External answer writer shares the durable log.
	store := storage.NewStore(root)
	require.NoError(t, store.MarkAnswered(a.Session().ID, asked.QuestionID, "yes"))

	wait := 10.0
	checked, err := a.Check(ctx, relay.CheckParams{
		QuestionIDs: []string{asked.QuestionID},
		WaitSeconds: &wait,
	})
	require.NoError(t, err)
	require.Len(t, checked.Answers, 1)
	assert.Equal(t, "yes", checked.Answers[0].Answer)

	marked, err := a.Mark(ctx, relay.MarkParams{QuestionID: asked.QuestionID})
	require.NoError(t, err)
	assert.True(t, marked.Success)

	session, err := a.UpdateStatus(ctx, daemon.SessionIdle, "")
	require.NoError(t, err)
	assert.Equal(t, daemon.SessionIdle, session.Status)

	sessions, err := a.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	a.Stop(ctx)
	assert.Empty(t, d.Registry().All())
}

func TestAdapterStartIdempotent(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig()
	d := startInProcessDaemon(t, root, cfg)
	ctx := context.Background()

	a := New(root, cfg)
	require.NoError(t, a.Start(ctx))
	defer a.Stop(ctx)

	first := a.Session().ID
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, first, a.Session().ID)
	assert.Len(t, d.Registry().All(), 1)
}

func TestAdapterCallBeforeStart(t *testing.T) {
	a := New(t.TempDir(), testConfig())
	_, err := a.Ask(context.Background(), relay.AskParams{Question: "hello?"})
	assert.Error(t, err)
}
