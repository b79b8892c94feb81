package core

import "github.com/kamstrup/intmap"

// changeTracker is the set of entities touched during the current
// tick. Snapshotting it each tick drives incremental filter refresh:
// only entities that changed need their filter-group membership
// re-evaluated.
//
// seen gives O(1) dedup on mark; order is the (duplicate-free) log in
// mark order, sorted lazily by snapshot so the common case (marking a
// handful of entities per system call) never pays for iterating a map.
type changeTracker struct {
	seen  *intmap.Map[Entity, bool]
	order []Entity
}

func newChangeTracker() *changeTracker {
	return &changeTracker{seen: intmap.New[Entity, bool](256)}
}

func (t *changeTracker) mark(e Entity) {
	if _, ok := t.seen.Get(e); ok {
		return
	}
	t.seen.Put(e, true)
	t.order = append(t.order, e)
}

func (t *changeTracker) markAll(entities []Entity) {
	for _, e := range entities {
		t.mark(e)
	}
}

// snapshot returns a sorted, duplicate-free copy of the touched set
// and clears it.
func (t *changeTracker) snapshot() []Entity {
	out := make([]Entity, len(t.order))
	copy(out, t.order)
	sortEntities(out)
	t.seen = intmap.New[Entity, bool](256)
	t.order = nil
	return out
}
