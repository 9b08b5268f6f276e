package notify

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Publish(ItemUpdate{RemoteVideoID: "v1", State: "Fetched"})

	select {
	case u := <-a:
		if u.RemoteVideoID != "v1" {
			t.Errorf("unexpected update on a: %+v", u)
		}
	default:
		t.Fatalf("expected update on a")
	}

	select {
	case u := <-c:
		if u.RemoteVideoID != "v1" {
			t.Errorf("unexpected update on c: %+v", u)
		}
	default:
		t.Fatalf("expected update on c")
	}
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish(ItemUpdate{RemoteVideoID: "v"})
	}
	// Should not deadlock or panic; only defaultBufferSize messages queued.
	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			if count != defaultBufferSize {
				t.Fatalf("buffered count = %d, want %d", count, defaultBufferSize)
			}
			return
		}
	}
}

func TestTriggerCoalesces(t *testing.T) {
	tr := NewTrigger()
	tr.Fire()
	tr.Fire()
	tr.Fire()

	select {
	case <-tr.C():
	default:
		t.Fatalf("expected pending trigger")
	}

	select {
	case <-tr.C():
		t.Fatalf("expected no second pending trigger")
	default:
	}
}
