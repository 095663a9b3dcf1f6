package watch

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestPIDFile_AcquireThenIsRunning(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(dir)

	if p.IsRunning() {
		t.Fatal("expected not running before Acquire")
	}
	if err := p.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("expected running after Acquire")
	}

	data, err := os.ReadFile(filepath.Join(dir, "watch.pid"))
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("unexpected pid file contents: %q", data)
	}
}

func TestPIDFile_ReleaseClearsRunningState(t *testing.T) {
	dir := t.TempDir()
	p := NewPIDFile(dir)

	if err := p.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("expected not running after Release")
	}
}

func TestPIDFile_ReleaseWithoutAcquireIsSafe(t *testing.T) {
	p := NewPIDFile(t.TempDir())
	if err := p.Release(); err != nil {
		t.Fatalf("Release on never-acquired pidfile should be a no-op, got: %v", err)
	}
}

func TestPIDFile_StaleEntryFromDeadProcessIsReclaimed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.pid")
	// PID 999999 is extremely unlikely to be a live process in any test
	// environment.
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatalf("seed stale pid file: %v", err)
	}

	p := NewPIDFile(dir)
	if err := p.Acquire(); err != nil {
		t.Fatalf("Acquire should reclaim a stale pid file, got: %v", err)
	}
}
