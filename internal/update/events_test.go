package update

import (
	"testing"
	"time"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(ProgressEvent{DeviceID: "dev-01", Status: StatusUpdating, Progress: 42})

	for i, ch := range []<-chan ProgressEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.DeviceID != "dev-01" || ev.Progress != 42 {
				t.Errorf("subscriber %d event = %+v", i, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBroadcaster_CancelDetaches(t *testing.T) {
	b := NewBroadcaster()

	ch, cancel := b.Subscribe()
	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	cancel()
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after cancel = %d, want 0", got)
	}

	// The channel is closed so ranging subscribers terminate.
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Cancelling twice is harmless.
	cancel()
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()

	_, cancel := b.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(ProgressEvent{DeviceID: "dev-01", Progress: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
