package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topic names a domain event. Publishers own the payload type per topic.
type Topic string

const (
	EventDrawCompleted            Topic = "draw.completed"
	EventWithdrawalManualPending  Topic = "withdrawal.manual_pending"
	EventWithdrawalCompleted      Topic = "withdrawal.completed"
	EventInvariantViolation       Topic = "invariant.violation"
	EventDepositCompleted         Topic = "deposit.completed"
	EventWithdrawalBacklogWarning Topic = "withdrawal.backlog"
	EventTicketCreated            Topic = "ticket.created"
	EventTicketAnswered           Topic = "ticket.answered"
)

type DrawCompletedPayload struct {
	DrawID    string    `json:"draw_id"`
	UserID    string    `json:"user_id"`
	SourceID  string    `json:"source_id"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	Coupon    bool      `json:"coupon"`
	Timestamp time.Time `json:"timestamp"`
}

type WithdrawalPayload struct {
	WithdrawalID string    `json:"withdrawal_id"`
	UserID       string    `json:"user_id"`
	ItemID       string    `json:"item_id"`
	ItemName     string    `json:"item_name"`
	Status       string    `json:"status"`
	ETA          time.Time `json:"eta,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type InvariantViolationPayload struct {
	Operation string    `json:"operation"`
	UserID    string    `json:"user_id,omitempty"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

type DepositCompletedPayload struct {
	DepositID string    `json:"deposit_id"`
	UserID    string    `json:"user_id"`
	AmountUSD string    `json:"amount_usd"`
	Timestamp time.Time `json:"timestamp"`
}

type BacklogPayload struct {
	Pending       int64         `json:"pending"`
	OverThreshold int64         `json:"over_threshold"`
	Threshold     time.Duration `json:"threshold"`
	OldestPending time.Duration `json:"oldest_pending"`
	Timestamp     time.Time     `json:"timestamp"`
}

type TicketPayload struct {
	TicketID  string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type Handler func(payload any)

// Bus delivers events after the publishing transaction has committed.
// Handlers run on their own goroutines; a slow or panicking handler never
// blocks or fails the publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
	inflight sync.WaitGroup
	logger   *zap.Logger
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic][]Handler), logger: zap.NewNop()}
}

func (b *Bus) WithLogger(logger *zap.Logger) *Bus {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *Bus) Subscribe(topic Topic, handler Handler) {
	if b == nil || handler == nil || topic == "" {
		return
	}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.mu.Unlock()
}

func (b *Bus) Publish(topic Topic, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.inflight.Add(1)
		go b.run(topic, handler, payload)
	}
}

// Drain waits for running handlers, giving up when ctx ends.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) run(topic Topic, handler Handler, payload any) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", string(topic)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	handler(payload)
}
