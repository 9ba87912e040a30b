package bus

import (
	"context"
	"sync"
	"testing"

	"github.com/goliatone/go-session/core"
)

func TestMemoryFanOut(t *testing.T) {
	channel := NewMemory()
	ctx := context.Background()

	var mu sync.Mutex
	var received []core.BusMessage
	for i := 0; i < 3; i++ {
		if _, err := channel.Subscribe(func(_ context.Context, msg core.BusMessage) {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}

	err := channel.Publish(ctx, core.BusMessage{
		Type:        core.BusTypeIdentityChanged,
		Payload:     map[string]any{"id": "u1"},
		OriginTabID: "tab-a",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("delivered to %d subscribers, want 3", len(received))
	}
	for _, msg := range received {
		if msg.OriginTabID != "tab-a" || msg.Payload["id"] != "u1" {
			t.Fatalf("message = %+v", msg)
		}
	}
}

func TestMemoryUnsubscribe(t *testing.T) {
	channel := NewMemory()
	ctx := context.Background()

	var count int
	unsubscribe, err := channel.Subscribe(func(context.Context, core.BusMessage) {
		count++
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := channel.Publish(ctx, core.BusMessage{Type: core.BusTypeSessionCleared}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	unsubscribe()
	if err := channel.Publish(ctx, core.BusMessage{Type: core.BusTypeSessionCleared}); err != nil {
		t.Fatalf("publish after unsubscribe: %v", err)
	}

	if count != 1 {
		t.Fatalf("handler ran %d times, want 1", count)
	}
}

func TestMemoryPayloadIsolation(t *testing.T) {
	channel := NewMemory()
	payload := map[string]any{"id": "u1"}

	if _, err := channel.Subscribe(func(_ context.Context, msg core.BusMessage) {
		msg.Payload["id"] = "mutated"
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := channel.Publish(context.Background(), core.BusMessage{
		Type:    core.BusTypeIdentityChanged,
		Payload: payload,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if payload["id"] != "u1" {
		t.Fatal("subscriber mutation leaked into the publisher's payload")
	}
}

func TestMemoryRejectsNilHandler(t *testing.T) {
	if _, err := NewMemory().Subscribe(nil); err == nil {
		t.Fatal("expected an error for a nil handler")
	}
}
