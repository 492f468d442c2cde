// Package events implements the EventBus: a small non-blocking fanout of
// download state-change notifications to any number of subscribers.
package events

import (
	"sync"

	"downloadengine/internal/download"
)

// subscriberBuffer is the per-subscriber channel capacity. A slow or
// inattentive subscriber can fall behind by this many messages before the
// Bus starts dropping further sends to it rather than blocking the
// Engine's state-transition path.
const subscriberBuffer = 64

// Changed is the payload delivered to every subscriber whenever a Record
// changes state.
type Changed struct {
	Download download.Record
}

// Bus is a thread-safe, non-blocking publish/subscribe fanout. Emit is
// called directly rather than queued through a background goroutine,
// since the Engine already serializes state transitions through its own
// mutex before calling it.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Changed]struct{}
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Changed]struct{})}
}

// Subscribe registers a new listener and returns its channel along with an
// unsubscribe function. Callers must call unsubscribe when done listening,
// or the Bus will keep sending to (and eventually dropping for) a channel
// nobody reads from.
func (b *Bus) Subscribe() (<-chan Changed, func()) {
	ch := make(chan Changed, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Emit delivers msg to every current subscriber. Sends never block: a
// subscriber whose buffer is full simply misses this message rather than
// stalling the Engine's state-transition path.
func (b *Bus) Emit(msg Changed) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}
