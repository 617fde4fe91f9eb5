package events

import "testing"

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

func (e testEvent) Attributes() map[string]string {
	return map[string]string{"name": e.name}
}

type recorder struct{ got []Event }

func (r *recorder) Emit(ev Event) { r.got = append(r.got, ev) }

func TestBufferFlushPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Emit(testEvent{"b"})
	if len(buf.Events()) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(buf.Events()))
	}
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.got) != 2 || rec.got[0].EventType() != "a" || rec.got[1].EventType() != "b" {
		t.Fatalf("unexpected flush order: %+v", rec.got)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("expected buffer cleared after flush")
	}
}

func TestBufferResetDropsEvents(t *testing.T) {
	var buf Buffer
	buf.Emit(testEvent{"a"})
	buf.Reset()
	rec := &recorder{}
	buf.Flush(rec)
	if len(rec.got) != 0 {
		t.Fatalf("expected no events after reset, got %d", len(rec.got))
	}
}

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	ch, cancel := b.Subscribe()
	b.Emit(testEvent{"stake"})
	ev := <-ch
	if ev.EventType() != "stake" {
		t.Fatalf("unexpected event %q", ev.EventType())
	}
	cancel()
	cancel()
	if b.Subscribers() != 0 {
		t.Fatalf("expected subscription released")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe()
	defer cancel()
	b.Emit(testEvent{"first"})
	b.Emit(testEvent{"second"})
	if got := (<-ch).EventType(); got != "first" {
		t.Fatalf("expected first event retained, got %q", got)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected overflow event dropped, got %q", ev.EventType())
	default:
	}
}

func TestAttributesOf(t *testing.T) {
	attrs := AttributesOf(testEvent{"x"})
	if attrs["name"] != "x" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if len(AttributesOf(plainEvent{})) != 0 {
		t.Fatalf("expected empty attributes for plain events")
	}
}

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }
