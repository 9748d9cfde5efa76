// Package events carries the user-facing notification stream of the bridge.
// Front-ends subscribe to receive pre-formatted log and error lines; the
// proxy core publishes without knowing who, if anyone, is listening.
package events

import (
	"fmt"
	"sync"
	"time"
)

// Kind distinguishes ordinary log lines from error lines.
type Kind int

const (
	KindLog Kind = iota
	KindError
)

// Event is a single notification. Message already carries the bracketed
// local timestamp prefix, and for errors the ERROR: marker.
type Event struct {
	Kind    Kind
	Time    time.Time
	Message string
}

// Bus fans events out to any number of subscribers. Delivery is
// fire-and-forget: a subscriber whose channel is full misses events rather
// than blocking the emitting goroutine. Events published from one goroutine
// reach each subscriber in publish order; there is no total order across
// publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	now  func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[chan Event]struct{}),
		now:  time.Now,
	}
}

// Subscribe registers a new subscriber. The returned cancel function removes
// the subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Logf publishes a log event.
func (b *Bus) Logf(format string, args ...any) {
	if b == nil {
		return
	}
	now := b.now()
	b.publish(Event{
		Kind:    KindLog,
		Time:    now,
		Message: fmt.Sprintf("[%s] %s", now.Format("15:04:05"), fmt.Sprintf(format, args...)),
	})
}

// Errorf publishes an error event.
func (b *Bus) Errorf(format string, args ...any) {
	if b == nil {
		return
	}
	now := b.now()
	b.publish(Event{
		Kind:    KindError,
		Time:    now,
		Message: fmt.Sprintf("[%s] ERROR: %s", now.Format("15:04:05"), fmt.Sprintf(format, args...)),
	})
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
