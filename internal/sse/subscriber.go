package sse

import (
	"sync"
	"sync/atomic"
)

const subscriberQueueSize = 256

// Subscriber is one open event stream. A user holds at most one; registering
// a newer stream closes the older.
type Subscriber struct {
	UserID string
	Role   string

	events    chan SSEEvent
	done      chan struct{}
	closeOnce sync.Once

	// misses counts consecutive offers that found the queue full.
	misses atomic.Int32
}

func NewSubscriber(userID, role string) *Subscriber {
	return newSubscriber(userID, role, subscriberQueueSize)
}

func newSubscriber(userID, role string, queue int) *Subscriber {
	return &Subscriber{
		UserID: userID,
		Role:   role,
		events: make(chan SSEEvent, queue),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) Events() <-chan SSEEvent {
	return s.events
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// offer queues event without blocking. It returns the current miss streak,
// zero when the event was queued or the subscriber is already closed.
func (s *Subscriber) offer(event SSEEvent) int32 {
	select {
	case <-s.done:
		return 0
	default:
	}

	select {
	case s.events <- event:
		s.misses.Store(0)
		return 0
	default:
		return s.misses.Add(1)
	}
}
