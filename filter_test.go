package core

import "testing"

type Health struct {
	Current, Max int
}

type Stunned struct{}

// newTestRegistry wires a container into a fresh registry the way
// State.containerFor does, so filter.go's refine/seed logic can be
// exercised without a full State.
func newTestRegistry() *registry {
	return &registry{containers: map[ComponentKey]containerBase{}, sig: newSignatureSet()}
}

func register[T any](reg *registry, ct ComponentType[T]) *container[T] {
	c := newContainer(ct)
	key := ct.Key()
	c.setSig(func(e Entity, present bool) { reg.sig.set(e, key, present) })
	reg.containers[key] = c
	return c
}

func TestFilterBasicFiltersExcept(t *testing.T) {
	reg := newTestRegistry()
	pos := DeclareTrivial[Position]()
	vel := DeclareTrivial[Velocity]()
	stunned := DeclareFlag[Stunned]()

	posC := register(reg, pos)
	velC := register(reg, vel)
	stunC := register(reg, stunned)

	posC.AddZero([]Entity{1, 2, 3})
	velC.AddZero([]Entity{1, 2})
	stunC.AddZero([]Entity{2})
	posC.Promote()
	velC.Promote()
	stunC.Promote()

	group := NewFilterBuilder().Filters(pos, vel).Except(stunned).Build()
	got := evaluateFull(group, reg)

	want := []Entity{1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFilterOnAddOnRemove(t *testing.T) {
	reg := newTestRegistry()
	hp := DeclareTrivial[Health]()
	hpC := register(reg, hp)

	hpC.AddZero([]Entity{1, 2})

	onAdd := NewFilterBuilder().OnAdd(hp).Build()
	got := evaluateFull(onAdd, reg)
	if len(got) != 2 {
		t.Fatalf("on_add should see both freshly added entities, got %v", got)
	}

	hpC.Promote()
	hpC.Destroy([]Entity{1})

	onRemove := NewFilterBuilder().OnRemove(hp).Build()
	got = evaluateFull(onRemove, reg)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("on_remove should see only entity 1, got %v", got)
	}

	// entity 2 is ALIVE, not ADDED or REMOVED: neither lifecycle filter
	// should match it.
	got = evaluateFull(onAdd, reg)
	if len(got) != 0 {
		t.Fatalf("on_add should not match an ALIVE entity, got %v", got)
	}
}

func TestFilterOnCombineOnBreak(t *testing.T) {
	reg := newTestRegistry()
	pos := DeclareTrivial[Position]()
	vel := DeclareTrivial[Velocity]()
	posC := register(reg, pos)
	velC := register(reg, vel)

	posC.AddZero([]Entity{1})
	posC.Promote()

	// entity 1 now gains velocity: pos+vel just became whole.
	velC.AddZero([]Entity{1})

	combine := NewFilterBuilder().OnCombine(pos, vel).Build()
	got := evaluateFull(combine, reg)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("on_combine should match entity 1, got %v", got)
	}

	velC.Promote()
	// now break the tuple by removing velocity.
	velC.Destroy([]Entity{1})

	brk := NewFilterBuilder().OnBreak(pos, vel).Build()
	got = evaluateFull(brk, reg)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("on_break should match entity 1, got %v", got)
	}
}

func TestFilterIncrementalRefresh(t *testing.T) {
	reg := newTestRegistry()
	pos := DeclareTrivial[Position]()
	posC := register(reg, pos)

	posC.AddZero([]Entity{1, 2, 3})
	posC.Promote()

	ev := newFilterEvaluator()
	group := NewFilterBuilder().Filters(pos).Build()
	fr := ev.acquire(group)

	ev.refreshAll([]Entity{}, reg)
	if len(fr.result) != 3 {
		t.Fatalf("first refresh should see all 3 alive entities, got %v", fr.result)
	}

	// Entities outside the modified set are carried over without being
	// re-scanned; entity 2 is in it, so its destruction is seen.
	posC.Destroy([]Entity{2})
	ev.refreshAll([]Entity{2}, reg)
	if len(fr.result) != 2 {
		t.Fatalf("after destroying entity 2, result should shrink to 2, got %v", fr.result)
	}
	for _, e := range fr.result {
		if e == 2 {
			t.Fatalf("destroyed entity 2 should not remain in result: %v", fr.result)
		}
	}
}

func TestResolveForPackOrderByAndOnCondition(t *testing.T) {
	state := NewState(DefaultConfig())
	hp := DeclareTrivial[Health]()

	ids, err := state.CreateEntities(3, hp)
	if err != nil {
		t.Fatalf("CreateEntities: %v", err)
	}
	Set(state, hp, ids[0], Health{Current: 30})
	Set(state, hp, ids[1], Health{Current: 10})
	Set(state, hp, ids[2], Health{Current: 20})

	group := NewFilterBuilder().
		Filters(hp).
		OnCondition(func(state *State, e Entity) bool {
			return Get(state, hp, e).Current >= 20
		}).
		OrderBy(func(state *State, a, b Entity) bool {
			return Get(state, hp, a).Current < Get(state, hp, b).Current
		}).
		Build()

	base := evaluateFull(group, state.reg)
	got := resolveForPack(state, group, base)

	// ids[1] (Current=10) fails on_condition; ids[2] (20) sorts before
	// ids[0] (30).
	want := []Entity{ids[2], ids[0]}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFilterGroupDedup(t *testing.T) {
	pos := DeclareTrivial[Position]()
	vel := DeclareTrivial[Velocity]()

	a := NewFilterBuilder().Filters(pos, vel).Build()
	b := NewFilterBuilder().Filters(vel, pos).Build()
	if a.key != b.key {
		t.Fatalf("filter groups built from the same component set in different order should share a key: %q != %q", a.key, b.key)
	}
}
