package sse

import (
	"sort"
	"strconv"
	"sync"
)

const defaultReplayCapacity = 1000

// replayLog keeps the most recent events so a reconnecting stream can resume
// from its Last-Event-ID. Events are appended in sequence order.
type replayLog struct {
	mu      sync.RWMutex
	events  []SSEEvent
	head    int
	full    bool
	lastSeq int64
}

func newReplayLog(capacity int) *replayLog {
	if capacity <= 0 {
		capacity = defaultReplayCapacity
	}
	return &replayLog{events: make([]SSEEvent, 0, capacity)}
}

// record assigns the next sequence to event and retains it, evicting the
// oldest entry once the log is full.
func (l *replayLog) record(event SSEEvent) SSEEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeq++
	event.seq = l.lastSeq
	event.ID = strconv.FormatInt(event.seq, 10)

	if !l.full {
		l.events = append(l.events, event)
		l.full = len(l.events) == cap(l.events)
		return event
	}
	l.events[l.head] = event
	l.head = (l.head + 1) % len(l.events)
	return event
}

func (l *replayLog) ordered() []SSEEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]SSEEvent, 0, len(l.events))
	out = append(out, l.events[l.head:]...)
	return append(out, l.events[:l.head]...)
}

// after returns the retained events newer than lastID that sub may see. An
// empty or unparsable lastID replays everything retained.
func (l *replayLog) after(lastID string, sub *Subscriber) []SSEEvent {
	events := l.ordered()
	if lastSeq, err := strconv.ParseInt(lastID, 10, 64); err == nil {
		start := sort.Search(len(events), func(i int) bool {
			return events[i].seq > lastSeq
		})
		events = events[start:]
	}

	visible := make([]SSEEvent, 0, len(events))
	for _, event := range events {
		if event.audience.admits(sub) {
			visible = append(visible, event)
		}
	}
	return visible
}
