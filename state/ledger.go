package state

import (
	"sync"
	"time"
)

const (
	MinScore = 0
	MaxScore = 100

	maxReasons = 16
)

type ledgerEntry struct {
	score   int
	updated time.Time
	reasons []string
}

// ScoreLedger maps a path to a score clamped to [MinScore, MaxScore].
// With a zero decay rate scores never decrease except through Remove.
type ScoreLedger struct {
	mu           sync.Mutex
	entries      map[string]*ledgerEntry
	decayPerHour float64
	now          func() time.Time
}

type LedgerOption func(*ScoreLedger)

// WithDecay subtracts perHour points for each elapsed hour since the
// entry was last updated.
func WithDecay(perHour float64) LedgerOption {
	return func(l *ScoreLedger) {
		if perHour > 0 {
			l.decayPerHour = perHour
		}
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *ScoreLedger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewScoreLedger(opts ...LedgerOption) *ScoreLedger {
	l := &ScoreLedger{entries: make(map[string]*ledgerEntry), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Update adds delta to the path's score and returns the clamped result.
func (l *ScoreLedger) Update(path, reason string, delta int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	entry, ok := l.entries[path]
	if !ok {
		entry = &ledgerEntry{updated: now}
		l.entries[path] = entry
	}
	entry.score = clamp(l.decayed(entry, now) + delta)
	entry.updated = now
	if reason != "" {
		entry.reasons = append(entry.reasons, reason)
		if over := len(entry.reasons) - maxReasons; over > 0 {
			entry.reasons = append(entry.reasons[:0:0], entry.reasons[over:]...)
		}
	}
	return entry.score
}

func (l *ScoreLedger) Get(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[path]
	if !ok {
		return 0
	}
	return l.decayed(entry, l.now())
}

// Reasons returns the most recent reason labels recorded for path.
func (l *ScoreLedger) Reasons(path string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[path]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.reasons...)
}

func (l *ScoreLedger) Remove(path string) {
	l.mu.Lock()
	delete(l.entries, path)
	l.mu.Unlock()
}

func (l *ScoreLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ScoreLedger) decayed(entry *ledgerEntry, now time.Time) int {
	if l.decayPerHour <= 0 {
		return entry.score
	}
	elapsed := now.Sub(entry.updated)
	if elapsed <= 0 {
		return entry.score
	}
	return clamp(entry.score - int(elapsed.Hours()*l.decayPerHour))
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
