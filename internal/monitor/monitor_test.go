package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/spotter/internal/engine"
)

type recorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *recorder) emit(ev engine.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) has(op engine.Op, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, engine.Event{Op: op, Path: path})
}

func (r *recorder) anyMatch(pred func(engine.Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.events, pred)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startMonitor(t *testing.T, roots []string, skipDir func(string) bool) *recorder {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := New(logger).Watch(ctx, roots, skipDir, rec.emit); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatch_CreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	rec := startMonitor(t, []string{root}, nil)

	p := filepath.Join(root, "note.txt")
	if err := os.WriteFile(p, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpCreated, p)
	}, "create not reported")

	if err := os.WriteFile(p, []byte("ab"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpModified, p)
	}, "write not reported")

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpDeleted, p)
	}, "remove not reported")
}

func TestWatch_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	rec := startMonitor(t, []string{root}, nil)

	dir := filepath.Join(root, "sub")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpCreated, dir)
	}, "new dir not reported")

	p := filepath.Join(dir, "inner.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpCreated, p)
	}, "file in new dir not reported")
}

func TestWatch_Rename(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.txt")
	if err := os.WriteFile(oldPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := startMonitor(t, []string{root}, nil)

	newPath := filepath.Join(root, "new.txt")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpRenamed, oldPath) && rec.has(engine.OpCreated, newPath)
	}, "rename not reported as renamed + created")
}

func TestWatch_SkippedDirectoriesNotWatched(t *testing.T) {
	root := t.TempDir()
	skipped := filepath.Join(root, "node_modules")
	if err := os.Mkdir(skipped, 0o755); err != nil {
		t.Fatal(err)
	}
	skip := func(p string) bool { return filepath.Base(p) == "node_modules" }
	rec := startMonitor(t, []string{root}, skip)

	if err := os.WriteFile(filepath.Join(skipped, "x.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(root, "marker.txt")
	if err := os.WriteFile(marker, []byte("m"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpCreated, marker)
	}, "marker not reported")

	if rec.anyMatch(func(ev engine.Event) bool { return filepath.Dir(ev.Path) == skipped }) {
		t.Fatal("event reported from skipped directory")
	}
}

func TestWatch_MissingRootIgnored(t *testing.T) {
	root := t.TempDir()
	rec := startMonitor(t, []string{filepath.Join(root, "missing"), root}, nil)

	p := filepath.Join(root, "a.txt")
	if err := os.WriteFile(p, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return rec.has(engine.OpCreated, p)
	}, "create not reported with a missing root configured")
}
