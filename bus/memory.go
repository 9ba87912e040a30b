// Package bus provides cross-tab channel implementations. Every runtime that
// shares a credential scope attaches to the same channel; messages carry the
// origin tab so subscribers can skip their own writes.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-session/core"
	"github.com/google/uuid"
)

// Memory is an in-process fan-out channel. It backs single-process
// deployments where every tab runtime lives in the same binary, and it is the
// default channel in tests. Delivery is synchronous: Publish returns after
// every subscriber ran.
type Memory struct {
	mu       sync.RWMutex
	handlers map[string]func(ctx context.Context, msg core.BusMessage)
}

func NewMemory() *Memory {
	return &Memory{
		handlers: make(map[string]func(ctx context.Context, msg core.BusMessage)),
	}
}

func (b *Memory) Publish(ctx context.Context, msg core.BusMessage) error {
	if b == nil {
		return fmt.Errorf("bus: memory channel is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.RLock()
	handlers := make([]func(ctx context.Context, msg core.BusMessage), 0, len(b.handlers))
	for _, handler := range b.handlers {
		handlers = append(handlers, handler)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, cloneMessage(msg))
	}
	return nil
}

func (b *Memory) Subscribe(handler func(ctx context.Context, msg core.BusMessage)) (func(), error) {
	if b == nil {
		return nil, fmt.Errorf("bus: memory channel is not configured")
	}
	if handler == nil {
		return nil, fmt.Errorf("bus: subscription handler is required")
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}

func cloneMessage(msg core.BusMessage) core.BusMessage {
	out := core.BusMessage{
		Type:        msg.Type,
		OriginTabID: msg.OriginTabID,
	}
	if len(msg.Payload) > 0 {
		out.Payload = make(map[string]any, len(msg.Payload))
		for key, value := range msg.Payload {
			out.Payload[key] = value
		}
	}
	return out
}

var _ core.BusChannel = (*Memory)(nil)
