// Package diag watches the escalation pipeline for stalls and captures
// artifacts when reputation checks stop completing.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"edrwatch/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	StallThreshold time.Duration
	Dir            string
	GoroutineLeak  bool
	// CompletedFn and PendingFn report the escalation pool's progress. A
	// stall is only declared while PendingFn is positive.
	CompletedFn        func() int64
	PendingFn          func() int64
	DumpFlightRecorder func(path string) error
	NowFn              func() time.Time
	ProfileLookupFn    func(name string) profileWriter
}

type Controller struct {
	stallThreshold     time.Duration
	dir                string
	goroutineLeak      bool
	completedFn        func() int64
	pendingFn          func() int64
	dumpFlightRecorder func(path string) error
	nowFn              func() time.Time
	profileLookupFn    func(name string) profileWriter

	mu             sync.Mutex
	lastProgressAt time.Time
	lastCompleted  int64
	lastDumpAt     time.Time
	dumps          int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewController(opts Options) *Controller {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	profileLookup := opts.ProfileLookupFn
	if profileLookup == nil {
		profileLookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	pendingFn := opts.PendingFn
	if pendingFn == nil {
		pendingFn = func() int64 { return 1 }
	}

	return &Controller{
		stallThreshold:     opts.StallThreshold,
		dir:                dir,
		goroutineLeak:      opts.GoroutineLeak,
		completedFn:        opts.CompletedFn,
		pendingFn:          pendingFn,
		dumpFlightRecorder: opts.DumpFlightRecorder,
		nowFn:              nowFn,
		profileLookupFn:    profileLookup,
	}
}

func (c *Controller) Start(ctx context.Context) {
	if c == nil || c.stallThreshold <= 0 || c.completedFn == nil || c.stopCh != nil {
		return
	}

	now := c.nowFn()
	c.mu.Lock()
	c.lastCompleted = c.completedFn()
	c.lastProgressAt = now
	c.lastDumpAt = time.Time{}
	c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := c.stallThreshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c.doneCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.runProbe(c.nowFn())
			}
		}
	}()
}

func (c *Controller) Close() {
	if c == nil {
		return
	}
	if c.stopCh != nil {
		close(c.stopCh)
		<-c.doneCh
		c.stopCh = nil
		c.doneCh = nil
	}

	if c.goroutineLeak {
		if _, err := c.writeProfile("goroutine", 2); err != nil {
			logger.Warnf("Diagnostics goroutine profile dump failed: %v", err)
		}
	}
}

// Dumps returns how many stall artifacts were written.
func (c *Controller) Dumps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dumps
}

func (c *Controller) runProbe(now time.Time) {
	if c == nil || c.completedFn == nil || c.stallThreshold <= 0 {
		return
	}

	completed := c.completedFn()
	pending := c.pendingFn()

	c.mu.Lock()
	// an idle pool is not stalled
	if completed != c.lastCompleted || pending <= 0 || c.lastProgressAt.IsZero() {
		c.lastCompleted = completed
		c.lastProgressAt = now
		c.mu.Unlock()
		return
	}
	stalledFor := now.Sub(c.lastProgressAt)
	shouldDump := stalledFor >= c.stallThreshold &&
		(c.lastDumpAt.IsZero() || now.Sub(c.lastDumpAt) >= c.stallThreshold)
	if shouldDump {
		c.lastDumpAt = now
		c.dumps++
	}
	c.mu.Unlock()

	if shouldDump {
		logger.Warnf("Escalations stalled for %s with %d pending", stalledFor.Round(time.Millisecond), pending)
		if err := c.dumpStallArtifacts(now, completed, pending, stalledFor); err != nil {
			logger.Warnf("Diagnostics stall dump failed: %v", err)
		}
	}
}

func (c *Controller) dumpStallArtifacts(now time.Time, completed, pending int64, stalledFor time.Duration) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	eventPath := filepath.Join(c.dir, fmt.Sprintf("edrwatch-stall-%s.json", ts))
	event := map[string]interface{}{
		"event":               "escalation_stall_threshold_exceeded",
		"timestamp":           now.UTC().Format(time.RFC3339Nano),
		"completed_count":     completed,
		"pending_count":       pending,
		"goroutines":          runtime.NumGoroutine(),
		"threshold_ms":        c.stallThreshold.Milliseconds(),
		"observed_stalled_ms": stalledFor.Milliseconds(),
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(eventPath, b, 0600); err != nil {
		return err
	}

	if c.dumpFlightRecorder != nil {
		tracePath := filepath.Join(c.dir, fmt.Sprintf("edrwatch-flight-%s.out", ts))
		if err := c.dumpFlightRecorder(tracePath); err != nil {
			logger.Warnf("Diagnostics flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (c *Controller) writeProfile(name string, debug int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("diagnostics controller is nil")
	}
	profile := c.profileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", err
	}
	ts := c.nowFn().UTC().Format("20060102-150405.000")
	path := filepath.Join(c.dir, fmt.Sprintf("edrwatch-%s-profile-%s.pprof", name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
