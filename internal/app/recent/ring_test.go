package recent

import "testing"

func TestRingKeepsNewestFirst(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	got := r.Snapshot(0)
	want := []int{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: want %d got %d (%v)", i, want[i], got[i], got)
		}
	}
}

func TestRingLengthIsMinOfPushesAndCapacity(t *testing.T) {
	for pushes := 0; pushes <= 25; pushes++ {
		r := New[int](10)
		for i := 0; i < pushes; i++ {
			r.Push(i)
		}
		want := pushes
		if want > 10 {
			want = 10
		}
		if r.Len() != want || len(r.Snapshot(0)) != want {
			t.Fatalf("after %d pushes: want len %d, got %d", pushes, want, r.Len())
		}
	}
}

func TestRingSnapshotLimitAndCopy(t *testing.T) {
	r := New[string](0)
	if r.Cap() != DefaultCapacity {
		t.Fatalf("expected default capacity, got %d", r.Cap())
	}
	r.Push("a")
	r.Push("b")
	r.Push("c")

	got := r.Snapshot(2)
	if len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Fatalf("unexpected limited snapshot %v", got)
	}

	got[0] = "mutated"
	if r.Snapshot(1)[0] != "c" {
		t.Fatalf("snapshot must be a copy")
	}
}
