package reconcile

import (
	"context"
	"sync"
)

// Broadcaster fans fractional progress (0-100) out to subscribers. The
// producer side never blocks: a subscriber that is not keeping up sees the
// latest value it managed to receive, not a backlog.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan float64]struct{}
	latest float64
	closed bool
}

// NewBroadcaster creates an empty progress broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan float64]struct{})}
}

// Subscribe returns a channel receiving progress updates. The subscription
// ends when ctx is cancelled or the broadcaster closes.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan float64 {
	ch := make(chan float64, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	if b.latest > 0 {
		ch <- b.latest
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Publish sends a progress percentage to every subscriber without
// blocking. Slow subscribers are overwritten with the newest value.
func (b *Broadcaster) Publish(percent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = percent
	for ch := range b.subs {
		select {
		case ch <- percent:
		default:
			// Drop the stale value, replace with the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- percent:
			default:
			}
		}
	}
}

// Close ends all subscriptions. Publish becomes a no-op.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
