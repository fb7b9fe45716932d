//go:build linux

package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// startWithChild runs script in a fresh job directory. The script must write
// the pid of a background child to child.pid.
func startWithChild(t *testing.T, script string) (Handle, int) {
	t.Helper()
	dir := t.TempDir()
	rt := NewExecRuntime(dir)

	handle, err := rt.Start(context.Background(), StartOptions{
		Command: []string{"sh", "-c", script},
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pidFile := filepath.Join(dir, "child.pid")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(pidFile)
		if err == nil && strings.HasSuffix(string(data), "\n") {
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err != nil {
				t.Fatalf("bad pid file: %q", data)
			}
			return handle, pid
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("child pid was never written")
	return nil, 0
}

// alive treats zombies as dead: they are gone but may wait for a reaper.
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
		return false
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	return !strings.Contains(string(data), ") Z ")
}

func waitDead(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	syscall.Kill(pid, syscall.SIGKILL)
	t.Fatalf("process %d survived", pid)
}

func TestSupervise_KillsGrandchildrenAfterTimeout(t *testing.T) {
	// Background children of a non-interactive shell ignore SIGINT, like a
	// solver behind a launcher script that does not forward it.
	handle, child := startWithChild(t, "trap '' INT; sleep 30 & echo $! > child.pid; wait")

	_, timedOut, err := Supervise(context.Background(), handle, 300*time.Millisecond, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Supervise failed: %v", err)
	}
	if !timedOut {
		t.Fatal("expected timeout")
	}

	waitDead(t, child)
}

func TestRelease_KillsLeftoverChildren(t *testing.T) {
	handle, child := startWithChild(t, "sleep 30 & echo $! > child.pid")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := handle.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !alive(child) {
		t.Fatal("expected the background child to outlive the shell")
	}

	if err := handle.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	waitDead(t, child)
}
