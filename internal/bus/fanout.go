// Package bus fans events out to in-process subscribers. A slow subscriber
// loses events rather than blocking the publisher.
package bus

import (
	"context"
	"sync"
)

// FanOut broadcasts values to N subscriber channels.
// If a subscriber channel is full, the value is dropped for that subscriber.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int
	closed  bool

	// OnDrop is called when a value is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.outputs = append(f.outputs, ch)
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (f *FanOut[T]) Unsubscribe(ch <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, out := range f.outputs {
		if out == ch {
			close(out)
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every subscriber without blocking.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			}
		}
	}
}

// Run reads from input and publishes each value until ctx is cancelled or
// input is closed, then closes every subscriber channel.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
	f.outputs = nil
}

// ChannelStat reports (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns saturation for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
