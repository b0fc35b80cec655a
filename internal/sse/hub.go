package sse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"lootbox-hub/internal/metrics"
)

const (
	heartbeatInterval = 30 * time.Second
	// maxMissStreak is how many consecutive full-queue offers a subscriber
	// survives before it is disconnected.
	maxMissStreak = 5
)

// SSEHub fans draw, balance and withdrawal updates out to open streams.
type SSEHub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	replay      *replayLog

	logger *zap.Logger
	stopCh chan struct{}
	stop   sync.Once
}

func NewHub(logger *zap.Logger) *SSEHub {
	hub := newHub(logger, defaultReplayCapacity)
	go hub.heartbeat()
	return hub
}

func newHub(logger *zap.Logger, replayCapacity int) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEHub{
		subscribers: make(map[string]*Subscriber),
		replay:      newReplayLog(replayCapacity),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Register makes sub the user's live stream, closing any previous one.
func (h *SSEHub) Register(sub *Subscriber) {
	if h == nil || sub == nil || sub.UserID == "" {
		return
	}

	h.mu.Lock()
	previous := h.subscribers[sub.UserID]
	h.subscribers[sub.UserID] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	if previous != nil && previous != sub {
		previous.Close()
	}
	metrics.SetSSEClients(count)
}

// Detach removes sub only while it is still the user's live stream, so a
// stale stream closing never drops its replacement.
func (h *SSEHub) Detach(sub *Subscriber) {
	if h == nil || sub == nil {
		return
	}

	h.mu.Lock()
	if h.subscribers[sub.UserID] == sub {
		delete(h.subscribers, sub.UserID)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	sub.Close()
	metrics.SetSSEClients(count)
}

func (h *SSEHub) Broadcast(event SSEEvent) {
	if h == nil {
		return
	}
	h.deliver(h.replay.record(event))
}

func (h *SSEHub) SendToUser(userID string, event SSEEvent) {
	if h == nil || userID == "" {
		return
	}
	event.audience = audience{userID: userID}
	h.deliver(h.replay.record(event))
}

// SendToRoles reaches every stream whose role is listed. Operator alerts go
// to admins and moderators together.
func (h *SSEHub) SendToRoles(roles []string, event SSEEvent) {
	if h == nil || len(roles) == 0 {
		return
	}
	event.audience = audience{roles: append([]string(nil), roles...)}
	h.deliver(h.replay.record(event))
}

// Replay returns what sub missed after lastID, limited to events it was
// addressed by when they were sent.
func (h *SSEHub) Replay(sub *Subscriber, lastID string) []SSEEvent {
	if h == nil || sub == nil {
		return nil
	}
	return h.replay.after(lastID, sub)
}

func (h *SSEHub) Close() {
	if h == nil {
		return
	}
	h.stop.Do(func() {
		close(h.stopCh)
	})
}

func (h *SSEHub) ConnectedCount() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *SSEHub) deliver(event SSEEvent) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if event.audience.admits(sub) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		streak := sub.offer(event)
		if streak == 0 {
			continue
		}
		h.logger.Warn("sse queue full, event dropped",
			zap.String("user_id", sub.UserID),
			zap.String("type", event.Type),
			zap.Int32("miss_streak", streak),
		)
		if streak >= maxMissStreak {
			h.logger.Warn("disconnect slow sse subscriber", zap.String("user_id", sub.UserID))
			h.Detach(sub)
		}
	}
}

// heartbeat keeps idle proxies from closing streams. Heartbeats skip the
// replay log.
func (h *SSEHub) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			h.deliver(NewEvent(EventHeartbeat, map[string]any{
				"ts": now.UTC().Format(time.RFC3339Nano),
			}))
		}
	}
}
