package mqtt

import "testing"

func msg(i int) pending {
	return pending{topic: "t", payload: []byte{byte(i)}}
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(4)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxOrder(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(msg(i))
	}
	if o.len() != 5 {
		t.Fatalf("expected 5 buffered, got %d", o.len())
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}
	if o.len() != 0 || o.drain() != nil {
		t.Error("expected outbox empty after drain")
	}
}

func TestOutboxOverwritesOldest(t *testing.T) {
	o := newOutbox(5)
	for i := 0; i < 8; i++ {
		o.push(msg(i))
	}
	if o.dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", o.dropped)
	}

	got := o.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i := range got {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
	if o.dropped != 0 {
		t.Error("dropped counter should reset on drain")
	}
}

func TestOutboxReusableAfterDrain(t *testing.T) {
	o := newOutbox(3)
	for i := 0; i < 4; i++ {
		o.push(msg(i))
	}
	o.drain()

	o.push(msg(9))
	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 9 {
		t.Errorf("expected [9], got %v", got)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(2)
	o.push(pending{topic: "sys", payload: []byte("x"), qos: 1, retained: true})
	got := o.drain()[0]
	if got.topic != "sys" || got.qos != 1 || !got.retained || string(got.payload) != "x" {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(msg(1))
	o.push(msg(2))
	got := o.drain()
	if len(got) != 1 || got[0].payload[0] != 2 {
		t.Errorf("expected newest message only, got %v", got)
	}
}
