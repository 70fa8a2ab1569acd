package bus

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicMessageReceived)
	defer b.Unsubscribe(sub)

	b.Publish(TopicMessageReceived, "hello")

	select {
	case event := <-sub.Ch():
		if event.Topic != TopicMessageReceived {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicMessageReceived)
		}
		if event.Payload != "hello" {
			t.Fatalf("payload = %v, want %q", event.Payload, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusPrefixMatching(t *testing.T) {
	b := New()

	messageSub := b.Subscribe("message.")
	defer b.Unsubscribe(messageSub)

	allSub := b.Subscribe("")
	defer b.Unsubscribe(allSub)

	b.Publish(TopicMessageCompleted, "done")
	b.Publish(TopicLegacyTelegramRaw, "raw")

	select {
	case event := <-messageSub.Ch():
		if event.Topic != TopicMessageCompleted {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicMessageCompleted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message event")
	}

	select {
	case event := <-messageSub.Ch():
		t.Fatalf("unexpected event on messageSub: %v", event)
	case <-time.After(50 * time.Millisecond):
	}

	received := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allSub.Ch():
			received++
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for all event")
		}
	}
	if received != 2 {
		t.Fatalf("allSub received %d events, want 2", received)
	}
}

func TestBusNonBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicMessageReceived)
	defer b.Unsubscribe(sub)

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish(TopicMessageReceived, i)
	}

	count := 0
	for {
		select {
		case <-sub.Ch():
			count++
		default:
			goto done
		}
	}
done:
	if count != defaultBufferSize {
		t.Fatalf("received %d events, expected %d (buffer size)", count, defaultBufferSize)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicMessageReceived)

	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", b.SubscriberCount())
	}

	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Fatalf("count = %d, want 0", b.SubscriberCount())
	}

	_, ok := <-sub.Ch()
	if ok {
		t.Fatal("expected closed channel")
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	b := New()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	const goroutines = 10
	const perGoroutine = 5
	total := goroutines * perGoroutine

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				b.Publish(TopicMessageReceived, id*100+i)
			}
		}(g)
	}
	wg.Wait()

	received := 0
	for {
		select {
		case <-sub.Ch():
			received++
		default:
			goto done
		}
	}
done:
	if received != total {
		t.Fatalf("received %d events, want %d", received, total)
	}
}

func TestBusDroppedEventLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	b := NewWithLogger(logger)
	sub := b.Subscribe(TopicMessageReceived)
	defer b.Unsubscribe(sub)

	for i := 0; i < defaultBufferSize; i++ {
		b.Publish(TopicMessageReceived, i)
	}
	for i := 0; i < 10; i++ {
		b.Publish(TopicMessageReceived, "drop")
	}

	logOutput := buf.String()
	if !bytes.Contains([]byte(logOutput), []byte("bus_dropped_events_reached_threshold")) {
		t.Fatalf("expected threshold warning in log output, got: %s", logOutput)
	}
	if b.DroppedEventCount() != 10 {
		t.Fatalf("dropped count = %d, want 10", b.DroppedEventCount())
	}
}

func TestBusDropThreshold(t *testing.T) {
	tests := []struct {
		count    int64
		expected int64
	}{
		{1, 1},
		{5, 1},
		{10, 10},
		{99, 10},
		{100, 100},
		{999, 100},
		{1000, 1000},
	}
	for _, tt := range tests {
		got := dropThreshold(tt.count)
		if got != tt.expected {
			t.Errorf("dropThreshold(%d) = %d, want %d", tt.count, got, tt.expected)
		}
	}
}
