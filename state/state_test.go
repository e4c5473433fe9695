package state

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"edrwatch/scanner"
)

func TestSnapshotStoreReplace(t *testing.T) {
	s := NewSnapshotStore()
	if _, existed := s.Replace("/a", scanner.FileSnapshot{Size: 1}); existed {
		t.Fatal("first replace should report no predecessor")
	}
	prev, existed := s.Replace("/a", scanner.FileSnapshot{Size: 2})
	if !existed || prev.Size != 1 {
		t.Fatalf("expected predecessor of size 1, got %+v (existed=%v)", prev, existed)
	}
	if got, _ := s.Get("/a"); got.Size != 2 {
		t.Fatalf("store should hold latest snapshot, got %+v", got)
	}
	s.Remove("/a")
	if _, ok := s.Get("/a"); ok || s.Len() != 0 {
		t.Fatal("remove should purge the entry")
	}
}

func TestHistoryWindowEvictsOldest(t *testing.T) {
	h := NewHistoryWindow(3)
	base := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		h.Append("/a", AccessEvent{Kind: Modified, At: base.Add(time.Duration(i) * time.Second)})
	}
	events := h.Events("/a")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if !events[0].At.Equal(base.Add(2*time.Second)) || !events[2].At.Equal(base.Add(4*time.Second)) {
		t.Fatalf("unexpected window contents %+v", events)
	}
	events[0].Kind = Created
	if h.Events("/a")[0].Kind != Modified {
		t.Fatal("Events must return a copy")
	}
}

func TestHistoryWindowDefaultSize(t *testing.T) {
	h := NewHistoryWindow(0)
	if h.Size() != DefaultHistorySize {
		t.Fatalf("expected default size %d, got %d", DefaultHistorySize, h.Size())
	}
	for i := 0; i < 25; i++ {
		h.Append("/b", AccessEvent{Kind: Created, At: time.Unix(int64(i), 0)})
	}
	if got := len(h.Events("/b")); got != DefaultHistorySize {
		t.Fatalf("expected %d retained events, got %d", DefaultHistorySize, got)
	}
	h.Remove("/b")
	if h.Len() != 0 {
		t.Fatal("remove should purge history")
	}
}

func TestScoreLedgerClamps(t *testing.T) {
	l := NewScoreLedger()
	deltas := []int{5, 40, 60, -200, 7, 99, 99, -3}
	for _, d := range deltas {
		got := l.Update("/a", "test", d)
		if got < MinScore || got > MaxScore {
			t.Fatalf("score %d escaped bounds after delta %d", got, d)
		}
	}
	if got := l.Get("/a"); got != 97 {
		t.Fatalf("expected 97, got %d", got)
	}
	if l.Get("/missing") != 0 {
		t.Fatal("absent path should score 0")
	}
}

func TestScoreLedgerRemoveAndReasons(t *testing.T) {
	l := NewScoreLedger()
	l.Update("/a", "content modified", 2)
	l.Update("/a", "size changed", 1)
	l.Update("/a", "", 1)
	if got := l.Reasons("/a"); len(got) != 2 || got[1] != "size changed" {
		t.Fatalf("unexpected reasons %v", got)
	}
	l.Remove("/a")
	if l.Get("/a") != 0 || l.Reasons("/a") != nil || l.Len() != 0 {
		t.Fatal("remove should purge score and reasons")
	}
}

func TestScoreLedgerNoDecayByDefault(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewScoreLedger(WithClock(func() time.Time { return now }))
	l.Update("/a", "x", 20)
	now = now.Add(1000 * time.Hour)
	if got := l.Get("/a"); got != 20 {
		t.Fatalf("score should not decay by default, got %d", got)
	}
}

func TestScoreLedgerDecay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewScoreLedger(WithDecay(2), WithClock(func() time.Time { return now }))
	l.Update("/a", "x", 20)
	now = now.Add(3 * time.Hour)
	if got := l.Get("/a"); got != 14 {
		t.Fatalf("expected decayed score 14, got %d", got)
	}
	if got := l.Update("/a", "y", 1); got != 15 {
		t.Fatalf("expected 15 after update, got %d", got)
	}
	now = now.Add(100 * time.Hour)
	if got := l.Get("/a"); got != 0 {
		t.Fatalf("decay should floor at 0, got %d", got)
	}
}

func TestScoreLedgerConcurrentUpdates(t *testing.T) {
	l := NewScoreLedger()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Update("/shared", "inc", 1)
				l.Update(fmt.Sprintf("/p%d", i), "inc", 1)
			}
		}(i)
	}
	wg.Wait()
	if got := l.Get("/shared"); got != MaxScore {
		t.Fatalf("expected shared score capped at %d, got %d", MaxScore, got)
	}
	if got := l.Get("/p3"); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
