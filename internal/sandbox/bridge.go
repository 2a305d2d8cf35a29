package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrBridgeFull = errors.New("bridge buffer full")

// ChannelBridge delivers posted messages into a buffered channel. It never
// blocks the page: when the buffer is full the message is dropped and
// counted.
type ChannelBridge struct {
	ch      chan string
	dropped atomic.Int64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewChannelBridge creates a bridge buffering up to size messages
func NewChannelBridge(size int) *ChannelBridge {
	if size <= 0 {
		size = 64
	}
	return &ChannelBridge{ch: make(chan string, size)}
}

// Emit queues message for the host
func (b *ChannelBridge) Emit(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return ErrBridgeFull
	}

	select {
	case b.ch <- message:
		return nil
	default:
		b.dropped.Add(1)
		return ErrBridgeFull
	}
}

// Messages returns the receive side of the bridge
func (b *ChannelBridge) Messages() <-chan string {
	return b.ch
}

// Dropped returns how many messages were refused
func (b *ChannelBridge) Dropped() int {
	return int(b.dropped.Load())
}

// Close closes the message channel. Later emits are dropped.
func (b *ChannelBridge) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}

// BridgeFunc adapts a function to Bridge
type BridgeFunc func(ctx context.Context, message string) error

// Emit calls f
func (f BridgeFunc) Emit(ctx context.Context, message string) error {
	return f(ctx, message)
}
