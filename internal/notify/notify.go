// Package notify implements two broadcast primitives: a bounded,
// multi-producer/multi-consumer bus of Item updates (slow subscribers
// miss intermediate messages; each message carries the item's current
// state and last error, not a delta), and a coalesced trigger channel
// used to wake a scheduler loop ahead of its next tick.
package notify

import (
	"sync"
)

// defaultBufferSize is the per-subscriber buffer depth for item updates.
const defaultBufferSize = 100

// ItemUpdate is one message on the update bus: the affected item's id,
// current state and last error, ready to be marshaled to JSON for
// delivery. The item's other fields (queries, results, overrides, times)
// are not carried.
type ItemUpdate struct {
	RemoteVideoID string `json:"remote_video_id"`
	State         string `json:"state"`
	LastError     string `json:"last_error,omitempty"`
}

// Bus fans out ItemUpdate messages to any number of subscribers. A
// subscriber whose buffer is full when a publish happens drops the
// message rather than blocking the publisher.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan ItemUpdate]struct{}
}

// NewBus creates an empty update bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan ItemUpdate]struct{})}
}

// Subscribe registers a new receive channel. Call Unsubscribe when done to
// release it.
func (b *Bus) Subscribe() chan ItemUpdate {
	ch := make(chan ItemUpdate, defaultBufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *Bus) Unsubscribe(ch chan ItemUpdate) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish delivers update to every current subscriber, dropping it for any
// subscriber whose buffer is currently full.
func (b *Bus) Publish(update ItemUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

// Trigger is a coalesced, single-slot wakeup channel: repeated Fire calls
// between receives collapse to one pending wakeup.
type Trigger struct {
	ch chan struct{}
}

// NewTrigger creates a Trigger with its single coalescing slot.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Fire requests a wakeup. If one is already pending, this is a no-op.
func (t *Trigger) Fire() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a select statement waits on.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}
