package event

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus()
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		bus.Subscribe(EventDepositCompleted, func(payload any) {
			if p, ok := payload.(DepositCompletedPayload); ok && p.AmountUSD == "12.50" {
				calls.Add(1)
			}
		})
	}
	bus.Subscribe(EventDrawCompleted, func(any) {
		t.Error("handler for another topic ran")
	})

	bus.Publish(EventDepositCompleted, DepositCompletedPayload{AmountUSD: "12.50"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 deliveries, got %d", got)
	}
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus()
	delivered := make(chan struct{}, 1)
	bus.Subscribe(EventInvariantViolation, func(any) { panic("boom") })
	bus.Subscribe(EventInvariantViolation, func(any) { delivered <- struct{}{} })

	bus.Publish(EventInvariantViolation, InvariantViolationPayload{Operation: "open_box"})

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Drain(ctx); err != nil {
		t.Fatalf("drain after panic: %v", err)
	}
}

func TestBusDrainHonoursContext(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	bus.Subscribe(EventWithdrawalCompleted, func(any) { <-release })
	bus.Publish(EventWithdrawalCompleted, WithdrawalPayload{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Drain(ctx); err == nil {
		t.Fatal("expected drain to time out while a handler blocks")
	}
}

func TestBusNilSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(EventDrawCompleted, nil)
	bus.Subscribe(EventDrawCompleted, func(any) {})
}
