package state

import (
	"sync"
	"time"
)

const DefaultHistorySize = 10

type EventKind int

const (
	Created EventKind = iota + 1
	Modified
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

type AccessEvent struct {
	Kind EventKind
	At   time.Time
}

// HistoryWindow keeps the most recent events per path, oldest evicted first.
type HistoryWindow struct {
	mu     sync.Mutex
	size   int
	events map[string][]AccessEvent
}

func NewHistoryWindow(size int) *HistoryWindow {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &HistoryWindow{size: size, events: make(map[string][]AccessEvent)}
}

// Append records ev and returns a copy of the window after the append.
func (h *HistoryWindow) Append(path string, ev AccessEvent) []AccessEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.events[path], ev)
	if over := len(list) - h.size; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	h.events[path] = list
	return append([]AccessEvent(nil), list...)
}

func (h *HistoryWindow) Events(path string) []AccessEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]AccessEvent(nil), h.events[path]...)
}

func (h *HistoryWindow) Remove(path string) {
	h.mu.Lock()
	delete(h.events, path)
	h.mu.Unlock()
}

func (h *HistoryWindow) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *HistoryWindow) Size() int { return h.size }
