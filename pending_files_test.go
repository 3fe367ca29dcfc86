package poe

import "testing"

func TestPendingFileQueueFIFODrain(t *testing.T) {
	q := NewPendingFileQueue()
	q.Push("m1", "ref1", "https://cdn/ref1", "a.png", "image/png")
	q.Push("m1", "ref2", "https://cdn/ref2", "b.png", "image/png")
	q.Push("m2", "ref3", "https://cdn/ref3", "c.png", "image/png")

	events := q.Drain("m1")
	if len(events) != 2 {
		t.Fatalf("expected 2 events for m1, got %d", len(events))
	}

	// second drain should be empty now
	if events2 := q.Drain("m1"); len(events2) != 0 {
		t.Fatalf("expected drained queue to be empty, got %d", len(events2))
	}

	if url, ok := q.Lookup("ref3"); !ok || url != "https://cdn/ref3" {
		t.Fatalf("expected ref3 still resolvable after m1 drain, got %q ok=%v", url, ok)
	}
}

func TestPendingFileQueueLookupUnknownRef(t *testing.T) {
	q := NewPendingFileQueue()
	if _, ok := q.Lookup("nope"); ok {
		t.Fatalf("expected lookup miss for unknown ref")
	}
}
