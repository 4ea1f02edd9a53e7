package mqtt

import (
	"testing"
)

func TestBacklogEmptyTake(t *testing.T) {
	b := newBacklog(10)
	if got := b.take(); got != nil {
		t.Errorf("expected nil from empty take, got %d items", len(got))
	}
}

func TestBacklogPushAndTake(t *testing.T) {
	b := newBacklog(10)
	for i := 0; i < 5; i++ {
		b.push(pending{topic: "t", payload: []byte{byte(i)}})
	}

	got := b.take()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if b.len() != 0 {
		t.Errorf("expected empty backlog after take, got %d", b.len())
	}
}

func TestBacklogDropsOldest(t *testing.T) {
	b := newBacklog(5)
	for i := 0; i < 8; i++ {
		b.push(pending{topic: "t", payload: []byte{byte(i)}})
	}

	if b.dropped != 3 {
		t.Errorf("dropped: got %d, want 3", b.dropped)
	}
	got := b.take()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i, msg := range got {
		if want := byte(i + 3); msg.payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, msg.payload[0])
		}
	}
}

func TestBacklogReusableAfterTake(t *testing.T) {
	b := newBacklog(2)
	b.push(pending{payload: []byte{1}})
	b.push(pending{payload: []byte{2}})
	b.push(pending{payload: []byte{3}})
	b.take()

	b.push(pending{payload: []byte{4}})
	got := b.take()
	if len(got) != 1 || got[0].payload[0] != 4 {
		t.Errorf("unexpected backlog contents: %+v", got)
	}
}

func TestBacklogPreservesFields(t *testing.T) {
	b := newBacklog(1)
	b.push(pending{topic: "a/b", payload: []byte("x"), qos: 1, retained: true})

	got := b.take()[0]
	if got.topic != "a/b" || string(got.payload) != "x" || got.qos != 1 || !got.retained {
		t.Errorf("fields not preserved: %+v", got)
	}
}
