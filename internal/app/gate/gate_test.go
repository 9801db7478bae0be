package gate

import (
	"testing"
	"time"
)

func TestFirstObservationPersists(t *testing.T) {
	g := New(0)
	if g.Window() != DefaultWindow {
		t.Fatalf("expected default window, got %s", g.Window())
	}
	if !g.ShouldPersist(Key("m", "v"), "1", time.Now()) {
		t.Fatalf("first observation must persist")
	}
}

func TestUnchangedValueIsSpacedByWindow(t *testing.T) {
	g := New(5 * time.Second)
	key := Key("m", "v")
	t0 := time.Unix(1000, 0)

	var persisted []time.Time
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 100 * time.Millisecond)
		if g.ShouldPersist(key, "same", now) {
			g.MarkPersisted(key, "same", now)
			persisted = append(persisted, now)
		}
	}

	if len(persisted) != 2 {
		t.Fatalf("expected 2 persisted writes over 10s, got %d", len(persisted))
	}
	for i := 1; i < len(persisted); i++ {
		if gap := persisted[i].Sub(persisted[i-1]); gap < 5*time.Second {
			t.Fatalf("writes %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestChangedValuePersistsImmediately(t *testing.T) {
	g := New(5 * time.Second)
	key := Key("m", "v")
	now := time.Unix(1000, 0)

	g.MarkPersisted(key, "1", now)
	if g.ShouldPersist(key, "1", now.Add(time.Second)) {
		t.Fatalf("unchanged value within window must be suppressed")
	}
	if !g.ShouldPersist(key, "2", now.Add(time.Second)) {
		t.Fatalf("changed value must persist")
	}
	if !g.ShouldPersist(key, "1", now.Add(5*time.Second)) {
		t.Fatalf("window boundary is inclusive")
	}
}

func TestMarkPersistedIdempotent(t *testing.T) {
	g := New(time.Second)
	now := time.Unix(50, 0)
	g.MarkPersisted("k", "v", now)
	g.MarkPersisted("k", "v", now)

	e, ok := g.Lookup("k")
	if !ok || e.LastPersistedValue != "v" || !e.LastPersistedAt.Equal(now) {
		t.Fatalf("unexpected entry %+v ok=%v", e, ok)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", g.Len())
	}
}
