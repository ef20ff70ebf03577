package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_CreatesLogFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "logs", "daemon.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestInit_SecondCallIsNoop(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first := filepath.Join(t.TempDir(), "first.log")
	second := filepath.Join(t.TempDir(), "second.log")

	if err := Init(first); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(second); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Error("second Init should not have created a new log file")
	}
}

func TestWithSession_AttachesField(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "test.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}

	WithSession("sess-42").Info("hello")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "sessionID=sess-42") {
		t.Errorf("log output missing session field: %s", data)
	}
}

func TestSetDebug_TogglesLevel(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "test.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}

	WithComponent("test").Debug("hidden")
	SetDebug(true)
	WithComponent("test").Debug("visible")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug message logged before SetDebug(true)")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("debug message missing after SetDebug(true)")
	}
}

func TestAdapterLogPath_IncludesPID(t *testing.T) {
	p := AdapterLogPath("/project")
	if !strings.Contains(filepath.Base(p), "adapter-") {
		t.Errorf("adapter log name = %q, want adapter-<pid>.log", filepath.Base(p))
	}
}
