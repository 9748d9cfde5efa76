package events

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus()
	b.now = func() time.Time {
		return time.Date(2024, 3, 1, 9, 5, 42, 0, time.Local)
	}
	return b
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestLogfFormatsTimestampPrefix(t *testing.T) {
	b := fixedBus(t)
	ch, cancel := b.Subscribe(0)
	defer cancel()

	b.Logf("relay started on port %d", 52100)
	ev := receive(t, ch)
	if ev.Kind != KindLog {
		t.Fatalf("Kind = %v, want KindLog", ev.Kind)
	}
	if want := "[09:05:42] relay started on port 52100"; ev.Message != want {
		t.Fatalf("Message = %q, want %q", ev.Message, want)
	}
}

func TestErrorfFormatsErrorPrefix(t *testing.T) {
	b := fixedBus(t)
	ch, cancel := b.Subscribe(0)
	defer cancel()

	b.Errorf("dial failed: %v", fmt.Errorf("connection refused"))
	ev := receive(t, ch)
	if ev.Kind != KindError {
		t.Fatalf("Kind = %v, want KindError", ev.Kind)
	}
	if want := "[09:05:42] ERROR: dial failed: connection refused"; ev.Message != want {
		t.Fatalf("Message = %q, want %q", ev.Message, want)
	}
}

func TestPublishOrderPerSource(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(16)
	defer cancel()

	for i := 0; i < 5; i++ {
		b.Logf("event %d", i)
	}
	for i := 0; i < 5; i++ {
		ev := receive(t, ch)
		if !strings.HasSuffix(ev.Message, fmt.Sprintf("event %d", i)) {
			t.Fatalf("event %d out of order: %q", i, ev.Message)
		}
	}
}

func TestFullSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := NewBus()
	slow, cancelSlow := b.Subscribe(1)
	defer cancelSlow()
	fast, cancelFast := b.Subscribe(16)
	defer cancelFast()

	published := make(chan struct{})
	go func() {
		// The slow subscriber's buffer fills after one event; the rest are
		// dropped for it but still reach the fast subscriber.
		for i := 0; i < 10; i++ {
			b.Logf("event %d", i)
		}
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	for i := 0; i < 10; i++ {
		receive(t, fast)
	}
	if len(slow) != 1 {
		t.Fatalf("slow subscriber holds %d events, want 1", len(slow))
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)
	cancel()
	cancel() // second call is a no-op

	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
	// Publishing after cancel must not panic on the closed channel.
	b.Logf("after cancel")
}

func TestNilBusIsSafe(t *testing.T) {
	var b *Bus
	b.Logf("ignored")
	b.Errorf("ignored")
}
