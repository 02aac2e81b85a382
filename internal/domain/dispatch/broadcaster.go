package dispatch

import (
	"sync"

	"github.com/target/mailrelay/internal/domain/model"
)

const defaultSubscriberBuffer = 64

// Broadcaster fans dispatch events out to UI listeners.
// Delivery is at-most-once: a listener whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan model.DispatchEvent]struct{}
	closed bool
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan model.DispatchEvent]struct{})}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (func(), <-chan model.DispatchEvent) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan model.DispatchEvent, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return func() {}, ch
	}
	b.subs[ch] = struct{}{}

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; !ok {
			return
		}
		delete(b.subs, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// Publish delivers evt to every listener without blocking and returns how many received it.
func (b *Broadcaster) Publish(evt model.DispatchEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for ch := range b.subs {
		select {
		case ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of registered listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// StopAll closes every listener channel. Later subscriptions receive a closed channel.
func (b *Broadcaster) StopAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subs {
		drainAndClose(ch)
		delete(b.subs, ch)
	}
}

// drainAndClose removes buffered events before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan model.DispatchEvent) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
