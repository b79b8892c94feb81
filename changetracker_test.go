package core

import "testing"

func TestChangeTrackerSnapshotSortedDedupedAndClears(t *testing.T) {
	ct := newChangeTracker()
	ct.markAll([]Entity{3, 1, 2, 1, 3})

	snap := ct.snapshot()
	want := []Entity{1, 2, 3}
	if len(snap) != len(want) {
		t.Fatalf("snapshot = %v, want %v", snap, want)
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", snap, want)
		}
	}

	if again := ct.snapshot(); len(again) != 0 {
		t.Fatalf("snapshot should clear the tracker, second snapshot = %v", again)
	}
}
