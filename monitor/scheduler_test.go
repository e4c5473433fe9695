package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"edrwatch/engine"
)

type recordedEvent struct {
	path    string
	kind    engine.EventKind
	deleted bool
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeDispatcher) HandleFileEvent(_ context.Context, path string, kind engine.EventKind) bool {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{path: path, kind: kind})
	f.mu.Unlock()
	return false
}

func (f *fakeDispatcher) HandleDeleteEvent(path string) {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{path: path, deleted: true})
	f.mu.Unlock()
}

func (f *fakeDispatcher) has(match func(recordedEvent) bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if match(ev) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startScheduler(t *testing.T, root string, opts Options) (*Scheduler, *fakeDispatcher, context.CancelFunc, <-chan error) {
	t.Helper()
	d := &fakeDispatcher{}
	s := New(root, d, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("scheduler never became ready")
	}
	t.Cleanup(cancel)
	return s, d, cancel, done
}

func TestSchedulerDispatchesCreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	_, d, cancel, done := startScheduler(t, root, Options{})

	path := filepath.Join(root, "payload.exe")
	if err := os.WriteFile(path, []byte("MZ"), 0o700); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "create event", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.kind == engine.Created })
	})

	if err := os.WriteFile(path, []byte("MZ-changed"), 0o700); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "modify event", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.kind == engine.Modified })
	})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delete event", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.deleted })
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
}

func TestSchedulerRegistersExistingAndNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatal(err)
	}
	s, d, _, _ := startScheduler(t, root, Options{})
	if got := s.Stats().Watched; got != 3 {
		t.Fatalf("expected 3 watched directories, got %d", got)
	}

	deep := filepath.Join(existing, "c.txt")
	if err := os.WriteFile(deep, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "event in pre-existing subdirectory", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == deep })
	})

	fresh := filepath.Join(root, "fresh")
	if err := os.Mkdir(fresh, 0o755); err != nil {
		t.Fatal(err)
	}
	inFresh := filepath.Join(fresh, "dropped.bin")
	if err := os.WriteFile(inFresh, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "event in new subdirectory", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == inFresh && ev.kind == engine.Created })
	})
	waitFor(t, "new subdirectory watched", func() bool { return s.Stats().Watched == 4 })
}

func TestSchedulerMissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), &fakeDispatcher{}, Options{})
	err := s.Run(context.Background())
	if !errors.Is(err, ErrNoWatches) {
		t.Fatalf("expected ErrNoWatches, got %v", err)
	}
}

func TestSchedulerStopsWhenRootRemoved(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "watched")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	_, _, _, done := startScheduler(t, root, Options{})
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after its root was removed")
	}
}

func TestSchedulerForgetsRemovedSubtree(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(filepath.Join(sub, "inner"), 0o755); err != nil {
		t.Fatal(err)
	}
	s, _, _, _ := startScheduler(t, root, Options{})
	if got := s.Stats().Watched; got != 3 {
		t.Fatalf("expected 3 watched directories, got %d", got)
	}
	if err := os.RemoveAll(sub); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "subtree to be forgotten", func() bool { return s.Stats().Watched == 1 })
}

func TestSchedulerSkipsUnregistrableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs POSIX permission checks enforced")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	sibling := filepath.Join(root, "sibling")
	for _, dir := range []string{locked, sibling} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	s, d, _, _ := startScheduler(t, root, Options{})
	st := s.Stats()
	if st.Failed != 1 || st.Watched != 2 {
		t.Fatalf("expected one failed and two watched directories, got %+v", st)
	}

	path := filepath.Join(sibling, "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "event in sibling directory", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.kind == engine.Created })
	})
}

func TestSchedulerRenameIsDeleteOfOldPath(t *testing.T) {
	root := t.TempDir()
	_, d, _, _ := startScheduler(t, root, Options{CoalesceWindow: 50 * time.Millisecond})

	oldPath := filepath.Join(root, "invoice.pdf")
	newPath := filepath.Join(root, "invoice.pdf.locked")
	if err := os.WriteFile(oldPath, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "create event", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == oldPath && ev.kind == engine.Created })
	})
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "delete of the old name", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == oldPath && ev.deleted })
	})
	waitFor(t, "create of the new name", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == newPath && ev.kind == engine.Created })
	})
}

func TestSchedulerChmodIsModify(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("chmod does not raise attribute events on windows")
	}
	root := t.TempDir()
	_, d, _, _ := startScheduler(t, root, Options{CoalesceWindow: 50 * time.Millisecond})

	path := filepath.Join(root, "run.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "create event", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.kind == engine.Created })
	})
	if err := os.Chmod(path, 0o700); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "modify event after chmod", func() bool {
		return d.has(func(ev recordedEvent) bool { return ev.path == path && ev.kind == engine.Modified })
	})
}
