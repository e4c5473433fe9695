// Package monitor turns filesystem change notifications for a directory tree
// into calls against the event handler.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/schollz/progressbar/v3"

	"edrwatch/engine"
	"edrwatch/logger"
	"edrwatch/tracing"
	"edrwatch/utils"
)

var (
	// ErrNoWatches is returned when not a single directory could be registered.
	ErrNoWatches = errors.New("no directories could be registered for watching")
	// ErrWatcherClosed is returned when the notification channel fails.
	ErrWatcherClosed = errors.New("change notification channel closed")
)

// Dispatcher receives translated events. It is satisfied by *engine.Handler.
type Dispatcher interface {
	HandleFileEvent(ctx context.Context, path string, kind engine.EventKind) bool
	HandleDeleteEvent(path string)
}

// DefaultCoalesceWindow is how long a path must stay quiet before its
// merged event is dispatched.
const DefaultCoalesceWindow = 250 * time.Millisecond

type Options struct {
	// CoalesceWindow merges create/write/chmod notifications for the same
	// path until it has been quiet this long. Zero uses
	// DefaultCoalesceWindow; a negative value dispatches every notification.
	CoalesceWindow   time.Duration
	// RescanOnOverflow re-walks the root after an overflow and registers
	// directories that are not yet watched. No file events are synthesized.
	RescanOnOverflow bool
	ShowProgress     bool
}

type Stats struct {
	Watched   int   `json:"watched_dirs"`
	Events    int64 `json:"raw_events"`
	Overflows int64 `json:"overflows"`
	Failed    int64 `json:"failed_registrations"`
	Coalesced int64 `json:"coalesced_events"`
}

// pendingEvent is a merged notification waiting for its path to go quiet.
// Created wins over Modified so a file written right after creation is
// still a first sighting.
type pendingEvent struct {
	kind engine.EventKind
	last time.Time
}

// Scheduler owns the watcher and the single dispatch loop.
type Scheduler struct {
	root     string
	dispatch Dispatcher
	opts     Options

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]struct{}
	ready   chan struct{}

	// pending and flushTimer are owned by the Run goroutine.
	pending    map[string]pendingEvent
	flushTimer *time.Timer
	armed      bool
	now        func() time.Time

	events, overflows, failed, coalesced atomic.Int64
}

func New(root string, dispatch Dispatcher, opts Options) *Scheduler {
	if opts.CoalesceWindow == 0 {
		opts.CoalesceWindow = DefaultCoalesceWindow
	}
	return &Scheduler{
		root:     utils.CanonicalPath(root),
		dispatch: dispatch,
		opts:     opts,
		watched:  make(map[string]struct{}),
		ready:    make(chan struct{}),
		pending:  make(map[string]pendingEvent),
		now:      time.Now,
	}
}

// Ready is closed once the initial registration walk has finished.
func (s *Scheduler) Ready() <-chan struct{} {
	return s.ready
}

// Run registers the tree and dispatches events until ctx is cancelled or
// every registration has been invalidated, in which case it returns nil.
// A failed notification channel is reported as ErrWatcherClosed.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, endTask := tracing.StartTask(ctx, "monitor")
	defer endTask()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	s.watcher = watcher

	// Single flush timer, armed for the earliest pending path.
	s.flushTimer = time.NewTimer(time.Hour)
	s.flushTimer.Stop()
	defer s.flushTimer.Stop()

	registered := s.registerInitial(ctx)
	close(s.ready)
	if registered == 0 {
		return fmt.Errorf("%w: %s", ErrNoWatches, s.root)
	}
	logger.Infof("Successfully registered %d directories under %s", registered, s.root)

	for {
		select {
		case <-ctx.Done():
			s.flush(ctx, true)
			logger.Info("Monitoring stopped")
			return nil
		case <-s.flushTimer.C:
			s.armed = false
			s.flush(ctx, false)
		case event, ok := <-watcher.Events:
			if !ok {
				return ErrWatcherClosed
			}
			s.events.Add(1)
			s.handle(ctx, event)
			if s.watchedCount() == 0 {
				s.flush(ctx, true)
				logger.Warn("All watch registrations are gone, stopping monitor")
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.overflows.Add(1)
				logger.Warn("OVERFLOW: some events may have been lost or discarded")
				if s.opts.RescanOnOverflow {
					if added := s.registerTree(ctx, s.root, false); added > 0 {
						logger.Infof("Registered %d missed directories after overflow", added)
					}
				}
				continue
			}
			logger.Errorf("Watcher error: %v", err)
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, event fsnotify.Event) {
	path := utils.CanonicalPath(event.Name)
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		delete(s.pending, path)
		s.dispatch.HandleDeleteEvent(path)
		s.forget(path)
	case event.Has(fsnotify.Create):
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			s.registerTree(ctx, path, true)
			return
		}
		s.enqueue(ctx, path, engine.Created)
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod):
		s.enqueue(ctx, path, engine.Modified)
	}
}

// enqueue merges a notification into the pending set for path. With
// coalescing disabled it dispatches straight away.
func (s *Scheduler) enqueue(ctx context.Context, path string, kind engine.EventKind) {
	if s.opts.CoalesceWindow < 0 {
		s.dispatch.HandleFileEvent(ctx, path, kind)
		return
	}
	if prev, ok := s.pending[path]; ok {
		s.coalesced.Add(1)
		if prev.kind == engine.Created {
			kind = engine.Created
		}
	}
	s.pending[path] = pendingEvent{kind: kind, last: s.now()}
	if !s.armed {
		s.arm(s.opts.CoalesceWindow)
	}
}

func (s *Scheduler) arm(d time.Duration) {
	s.flushTimer.Reset(d)
	s.armed = true
}

// flush dispatches every pending path that has been quiet for the coalesce
// window, or all of them when force is set, and re-arms the timer for the
// rest.
func (s *Scheduler) flush(ctx context.Context, force bool) {
	if len(s.pending) == 0 {
		return
	}
	now := s.now()
	var due []string
	next := time.Duration(-1)
	for path, p := range s.pending {
		wait := s.opts.CoalesceWindow - now.Sub(p.last)
		if force || wait <= 0 {
			due = append(due, path)
			continue
		}
		if next < 0 || wait < next {
			next = wait
		}
	}
	sort.Strings(due)
	for _, path := range due {
		kind := s.pending[path].kind
		delete(s.pending, path)
		s.dispatch.HandleFileEvent(ctx, path, kind)
	}
	if next >= 0 && !s.armed {
		s.arm(next)
	}
}

func (s *Scheduler) registerInitial(ctx context.Context) int {
	if !s.opts.ShowProgress {
		return s.registerTree(ctx, s.root, false)
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Registering directories"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()
	return s.walk(ctx, s.root, false, func() { _ = bar.Add(1) })
}

// registerTree watches dir and every directory below it that is not yet
// watched. With dispatchFiles, regular files found during the walk are
// reported as created so a freshly made directory cannot lose files that
// appeared before its watch was in place.
func (s *Scheduler) registerTree(ctx context.Context, dir string, dispatchFiles bool) int {
	return s.walk(ctx, dir, dispatchFiles, nil)
}

func (s *Scheduler) walk(ctx context.Context, dir string, dispatchFiles bool, progress func()) int {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Cannot access %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() {
			if dispatchFiles && d.Type().IsRegular() {
				s.enqueue(ctx, path, engine.Created)
			}
			return nil
		}
		if s.isWatched(path) {
			return nil
		}
		if err := s.watcher.Add(path); err != nil {
			s.failed.Add(1)
			logger.Warnf("Failed to register directory %s: %v", path, err)
			return nil
		}
		s.mu.Lock()
		s.watched[path] = struct{}{}
		s.mu.Unlock()
		added++
		if progress != nil {
			progress()
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warnf("Directory walk of %s stopped: %v", dir, err)
	}
	return added
}

// forget drops path and any watched directory beneath it.
func (s *Scheduler) forget(path string) {
	prefix := path + string(filepath.Separator)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[path]; !ok {
		return
	}
	for dir := range s.watched {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(s.watched, dir)
			_ = s.watcher.Remove(dir)
		}
	}
}

func (s *Scheduler) isWatched(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[path]
	return ok
}

func (s *Scheduler) watchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watched)
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Watched:   s.watchedCount(),
		Events:    s.events.Load(),
		Overflows: s.overflows.Load(),
		Failed:    s.failed.Load(),
		Coalesced: s.coalesced.Load(),
	}
}
