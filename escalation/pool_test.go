package escalation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"edrwatch/engine"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSink) WriteRecord(recordType string, payload interface{}) {
	if recordType != "alert" {
		return
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, payload.(Alert))
	s.mu.Unlock()
}

func (s *recordingSink) all() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

type fakeChecker struct {
	mu      sync.Mutex
	calls   []string
	verdict Verdict
	err     error
	block   chan struct{}
}

func (f *fakeChecker) Name() string { return "fake" }

func (f *fakeChecker) Check(ctx context.Context, fingerprint string) (Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fingerprint)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return VerdictUnknown, ctx.Err()
		}
	}
	return f.verdict, f.err
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func closePool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPoolWritesAlertWithVerdict(t *testing.T) {
	sink := &recordingSink{}
	checker := &fakeChecker{verdict: VerdictMalicious}
	p := NewPool(checker, NewVerdictCache(time.Hour), sink, Options{Workers: 2})

	if !p.Escalate(engine.Escalation{Path: "/gone/payload.exe", Fingerprint: "abc", Score: 40, Trigger: engine.TriggerScore}) {
		t.Fatal("escalation should be accepted")
	}
	closePool(t, p)

	alerts := sink.all()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Verdict != VerdictMalicious || a.LookupHash != "abc" || a.Checker != "fake" || a.Score != 40 {
		t.Fatalf("unexpected alert %+v", a)
	}
	st := p.Stats()
	if st.Completed != 1 || st.Malicious != 1 || st.Pending != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPoolUsesVerdictCache(t *testing.T) {
	sink := &recordingSink{}
	checker := &fakeChecker{verdict: VerdictClean}
	p := NewPool(checker, NewVerdictCache(time.Hour), sink, Options{Workers: 1})
	for i := 0; i < 3; i++ {
		p.Escalate(engine.Escalation{Path: "/x", Fingerprint: "same"})
	}
	closePool(t, p)
	if checker.callCount() != 1 {
		t.Fatalf("expected one lookup, got %d", checker.callCount())
	}
	cached := 0
	for _, a := range sink.all() {
		if a.Cached {
			cached++
		}
	}
	if cached != 2 {
		t.Fatalf("expected 2 cached alerts, got %d", cached)
	}
}

func TestPoolCheckerFailureIsUnknown(t *testing.T) {
	sink := &recordingSink{}
	checker := &fakeChecker{verdict: VerdictMalicious, err: errors.New("network down")}
	cache := NewVerdictCache(time.Hour)
	p := NewPool(checker, cache, sink, Options{Workers: 1})
	p.Escalate(engine.Escalation{Path: "/x", Fingerprint: "f"})
	closePool(t, p)

	alerts := sink.all()
	if len(alerts) != 1 || alerts[0].Verdict != VerdictUnknown || alerts[0].Error == "" {
		t.Fatalf("failure should yield unknown with error, got %+v", alerts)
	}
	if cache.Len() != 0 {
		t.Fatal("failed lookups must not be cached")
	}
	if p.Stats().Failed != 1 {
		t.Fatalf("expected one failure, got %+v", p.Stats())
	}
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	checker := &fakeChecker{block: make(chan struct{})}
	p := NewPool(checker, nil, nil, Options{Workers: 1, QueueSize: 1})

	if !p.Escalate(engine.Escalation{Path: "/1"}) {
		t.Fatal("first request should be accepted")
	}
	// wait until the worker holds the first request so the queue is empty
	deadline := time.Now().Add(5 * time.Second)
	for checker.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !p.Escalate(engine.Escalation{Path: "/2"}) {
		t.Fatal("second request should fill the queue")
	}

	start := time.Now()
	if err := p.Submit(engine.Escalation{Path: "/3"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Submit must not block")
	}
	if p.Pending() != 2 || p.Stats().Dropped != 1 {
		t.Fatalf("unexpected stats %+v", p.Stats())
	}

	close(checker.block)
	closePool(t, p)
	if p.Completed() != 2 {
		t.Fatalf("expected 2 completed, got %d", p.Completed())
	}
	if p.Escalate(engine.Escalation{Path: "/late"}) {
		t.Fatal("closed pool must reject work")
	}
}

func TestPoolCloseCancelsStuckChecks(t *testing.T) {
	checker := &fakeChecker{block: make(chan struct{})}
	p := NewPool(checker, nil, nil, Options{Workers: 1, Timeout: time.Hour})
	p.Escalate(engine.Escalation{Path: "/stuck"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if p.Pending() != 0 {
		t.Fatal("stuck check should have been cancelled")
	}
}

func TestEnrichComputesLookupHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "line %d: %x %s\n", i, i*7919, strings.Repeat(string(rune('a'+i%26)), i%13+1))
	}
	content := b.String()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	e := engine.Escalation{Path: path, Fingerprint: "blake3-digest", Score: 12, DetectedAt: time.Now()}

	plain := Enrich(e, EnrichOptions{})
	if plain.LookupHash != "blake3-digest" || plain.Hashes != nil {
		t.Fatalf("disabled enrichment should keep the fingerprint, got %+v", plain)
	}

	rich := Enrich(e, EnrichOptions{Enabled: true, Fuzzy: "tlsh"})
	if len(rich.LookupHash) != 64 || rich.LookupHash != rich.Hashes["sha256"] {
		t.Fatalf("expected sha256 lookup hash, got %+v", rich)
	}
	if rich.Hashes["md5"] == "" || rich.Hashes["sha1"] == "" {
		t.Fatalf("expected md5 and sha1, got %v", rich.Hashes)
	}
	if rich.FuzzyHash == "" {
		t.Fatal("expected a tlsh digest")
	}
	if rich.Size != int64(len(content)) || rich.MimeType == "" {
		t.Fatalf("unexpected size/mime %d %q", rich.Size, rich.MimeType)
	}

	capped := Enrich(e, EnrichOptions{Enabled: true, MaxSize: 10})
	if capped.Hashes != nil || capped.LookupHash != "blake3-digest" {
		t.Fatalf("oversize file should not be re-hashed, got %+v", capped)
	}
}

func TestVerdictCacheExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewVerdictCache(time.Minute)
	c.now = func() time.Time { return now }
	c.Put("h", VerdictMalicious)
	c.Put("", VerdictClean)
	if v, ok := c.Get("h"); !ok || v != VerdictMalicious {
		t.Fatalf("expected cached verdict, got %v %v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("h"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry should be evicted on read")
	}

	disabled := NewVerdictCache(0)
	disabled.Put("h", VerdictClean)
	if _, ok := disabled.Get("h"); ok {
		t.Fatal("disabled cache should store nothing")
	}
}
