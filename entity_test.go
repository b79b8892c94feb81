package core

import "testing"

func TestEntityAllocatorMonotonicNoReuse(t *testing.T) {
	a := newEntityAllocator()

	first, err := a.alloc(3)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if first != 1 {
		t.Fatalf("first id = %d, want 1 (0 is reserved for the zero value)", first)
	}

	second, err := a.alloc(2)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if second != 4 {
		t.Fatalf("second batch start = %d, want 4 (no overlap, no reuse)", second)
	}

	if got, want := a.high(), Entity(6); got != want {
		t.Fatalf("high() = %d, want %d", got, want)
	}
}

func TestEntityAllocatorZeroRequestIsNoop(t *testing.T) {
	a := newEntityAllocator()
	if e, err := a.alloc(0); err != nil || e != 0 {
		t.Fatalf("alloc(0) = (%d, %v), want (0, nil)", e, err)
	}
	if a.high() != 1 {
		t.Fatalf("alloc(0) must not advance the allocator, high() = %d", a.high())
	}
}

func TestEntityAllocatorExhaustion(t *testing.T) {
	a := &entityAllocator{next: 1<<32 - 1}
	if _, err := a.alloc(2); err == nil {
		t.Fatalf("expected EntitySpaceExhaustedError near the top of the id space")
	}
}

func TestSortEntitiesAscending(t *testing.T) {
	es := []Entity{5, 1, 4, 2, 3}
	sortEntities(es)
	for i := 1; i < len(es); i++ {
		if es[i-1] >= es[i] {
			t.Fatalf("not strictly ascending at %d: %v", i, es)
		}
	}
}
