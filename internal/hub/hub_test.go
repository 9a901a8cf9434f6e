package hub

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublishAndSubscribe(t *testing.T) {
	h := New()
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish("hello")
	h.Publish("world")

	if got := <-ch; got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	if got := <-ch; got != "world" {
		t.Fatalf("expected world, got %q", got)
	}
}

func TestCatchupOnSubscribe(t *testing.T) {
	h := New()

	h.Publish("line1")
	h.Publish("line2")
	h.Publish("line3")

	ch, unsub := h.Subscribe()
	defer unsub()

	for _, want := range []string{"line1", "line2", "line3"} {
		if got := <-ch; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestReplayKeepsMostRecent(t *testing.T) {
	h := NewWithCapacity(3)
	for i := 0; i < 5; i++ {
		h.Publish(fmt.Sprintf("line%d", i))
	}

	ch, unsub := h.Subscribe()
	defer unsub()

	for _, want := range []string{"line2", "line3", "line4"} {
		if got := <-ch; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra line %q", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	ch, unsub := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Subscribers())
	}

	unsub()
	unsub() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", h.Subscribers())
	}
	h.Publish("after") // must not panic on a closed channel
}

func TestCloseHub(t *testing.T) {
	h := New()
	ch, unsub := h.Subscribe()

	h.Publish("before")
	h.Close()
	unsub() // safe after Close

	<-ch
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after Close")
	}

	h.Publish("ignored")
	late, _ := h.Subscribe()
	var lines []string
	for line := range late {
		lines = append(lines, line)
	}
	if len(lines) != 1 || lines[0] != "before" {
		t.Fatalf("expected replay of [before], got %v", lines)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewWithCapacity(1)
	_, unsub := h.Subscribe() // never read
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish("x")
		}
		close(done)
	}()
	<-done
}

func TestConcurrentPublish(t *testing.T) {
	h := NewWithCapacity(500)
	ch, unsub := h.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Publish(fmt.Sprintf("%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	if got := len(ch); got != 250 {
		t.Fatalf("expected 250 queued lines, got %d", got)
	}
}
