package core

import (
	"sort"

	"github.com/TheBitDrifter/bark"
	"github.com/kamstrup/intmap"
)

// Stage identifies which partition of a container's dense array an
// entity currently occupies.
type Stage uint8

const (
	StageAdded Stage = 1 << iota
	StageAlive
	StageRemoved
)

// StageAll matches any stage; used by Has/Entities to query across
// the whole container regardless of lifecycle partition.
const StageAll = StageAdded | StageAlive | StageRemoved

// containerBase is the key-erased interface every staged sparse
// container satisfies, used wherever storage needs to be addressed
// without being generic over the payload type T. Rather than three
// distinct concrete types dispatched through an interface, trait is
// just a field on the single generic container[T], and T itself
// collapses the flag case for free (a struct{} payload costs nothing
// under Go's zero-size-type handling).
type containerBase interface {
	Key() ComponentKey
	Trait() Trait
	Has(e Entity, stages Stage) bool
	Entities(stages Stage) []Entity
	Len(stages Stage) int
	AddZero(entities []Entity)
	Destroy(entities []Entity)
	Forget(entities []Entity)
	Promote()
	Remap(mapping map[Entity]Entity, pred func(Entity) bool)
	Merge(other containerBase) error
	setSig(fn func(e Entity, present bool))
}

// container is the staged sparse container for component type T. Its
// dense array is physically laid out as [REMOVED | ALIVE | ADDED] —
// the reverse of the natural illustrative "[ADDED|ALIVE|REMOVED]"
// ordering — so that a brand new ADDED entity can be appended at the
// tail in O(1) instead of requiring a shift; the logical stage
// semantics are unaffected, since callers only ever observe stage
// membership and sorted entity views, never raw physical order.
type container[T any] struct {
	decl ComponentType[T]

	sparse *intmap.Map[Entity, uint32]
	dense  []T
	ents   []Entity

	removedEnd int // REMOVED = [0, removedEnd)
	aliveEnd   int // ALIVE   = [removedEnd, aliveEnd)
	// ADDED = [aliveEnd, len(dense))

	// sig, when non-nil, is flipped on every stage transition into/out
	// of ALIVE∪ADDED so the owning State's per-entity signature mask
	// (filter.go) stays in sync without a second full pass.
	sig func(e Entity, present bool)
}

func newContainer[T any](decl ComponentType[T]) *container[T] {
	return &container[T]{
		decl:   decl,
		sparse: intmap.New[Entity, uint32](64),
	}
}

func (c *container[T]) Key() ComponentKey { return c.decl.key }
func (c *container[T]) Trait() Trait      { return c.decl.trait }

// setSig installs the callback fired on every stage transition
// into/out of ALIVE∪ADDED, used by State to keep its per-entity
// signature mask (filter.go) in sync.
func (c *container[T]) setSig(fn func(e Entity, present bool)) { c.sig = fn }

func (c *container[T]) indexOf(e Entity) (int, bool) {
	idx, ok := c.sparse.Get(e)
	return int(idx), ok
}

func (c *container[T]) stageAt(idx int) Stage {
	switch {
	case idx < c.removedEnd:
		return StageRemoved
	case idx < c.aliveEnd:
		return StageAlive
	default:
		return StageAdded
	}
}

func (c *container[T]) Has(e Entity, stages Stage) bool {
	idx, ok := c.sparse.Get(e)
	if !ok {
		return false
	}
	return c.stageAt(int(idx))&stages != 0
}

// Entities returns a freshly sorted, duplicate-free list of entities
// currently in any of the requested stages, as a borrowed snapshot
// safe to iterate independent of later mutation.
func (c *container[T]) Entities(stages Stage) []Entity {
	out := make([]Entity, 0, len(c.ents))
	lo, hi := c.rangeFor(stages)
	if lo >= 0 {
		out = append(out, c.ents[lo:hi]...)
	} else {
		for i, e := range c.ents {
			if c.stageAt(i)&stages != 0 {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// rangeFor returns the contiguous index range for stages when stages
// names exactly one physical region, or (-1,-1) when it spans a
// non-contiguous combination (e.g. ADDED|REMOVED), in which case
// Entities falls back to a scan.
func (c *container[T]) rangeFor(stages Stage) (int, int) {
	switch stages {
	case StageRemoved:
		return 0, c.removedEnd
	case StageAlive:
		return c.removedEnd, c.aliveEnd
	case StageAdded:
		return c.aliveEnd, len(c.ents)
	case StageAlive | StageAdded:
		return c.removedEnd, len(c.ents)
	case StageRemoved | StageAlive | StageAdded:
		return 0, len(c.ents)
	default:
		return -1, -1
	}
}

func (c *container[T]) Len(stages Stage) int {
	lo, hi := c.rangeFor(stages)
	if lo >= 0 {
		return hi - lo
	}
	n := 0
	for i := range c.ents {
		if c.stageAt(i)&stages != 0 {
			n++
		}
	}
	return n
}

func (c *container[T]) setPresent(e Entity, present bool) {
	if c.sig != nil {
		c.sig(e, present)
	}
}

// swap exchanges the two dense slots (and their sparse entries).
func (c *container[T]) swap(i, j int) {
	if i == j {
		return
	}
	c.dense[i], c.dense[j] = c.dense[j], c.dense[i]
	c.ents[i], c.ents[j] = c.ents[j], c.ents[i]
	c.sparse.Put(c.ents[i], uint32(i))
	c.sparse.Put(c.ents[j], uint32(j))
}

// moveAddedToRemoved relocates the entity at physical index p (which
// must be in ADDED) into REMOVED, preserving the other two regions'
// membership. The first swap moves it to the first ADDED slot, the
// second exchanges that slot with the first ALIVE slot, and both
// cursors then advance by one.
func (c *container[T]) moveAddedToRemoved(p int) {
	c.swap(p, c.aliveEnd)
	c.swap(c.aliveEnd, c.removedEnd)
	c.removedEnd++
	c.aliveEnd++
}

// moveAliveToRemoved relocates the entity at physical index p (which
// must be in ALIVE) into REMOVED.
func (c *container[T]) moveAliveToRemoved(p int) {
	c.swap(p, c.removedEnd)
	c.removedEnd++
}

// moveRemovedToAdded relocates the entity at physical index p (which
// must be in REMOVED) into ADDED, crossing the ALIVE region. A re-add
// of a REMOVED entity lands in ADDED, not ALIVE (see DESIGN.md).
func (c *container[T]) moveRemovedToAdded(p int) {
	c.swap(p, c.removedEnd-1)
	c.removedEnd--
	c.swap(c.removedEnd, c.aliveEnd-1)
	c.aliveEnd--
}

// removeAt physically excises the entity at physical index p from the
// dense array, regardless of which stage it occupies, shifting every
// later entry down by one and re-pointing their sparse entries. Unlike
// the moveXToY helpers, the entity leaves no trace in any stage
// afterward — used by Forget, where a later caller (CommandBuffer
// merge) needs an entity to behave as if it had never existed.
func (c *container[T]) removeAt(p int) {
	st := c.stageAt(p)
	e := c.ents[p]
	c.sparse.Del(e)
	c.dense = append(c.dense[:p], c.dense[p+1:]...)
	c.ents = append(c.ents[:p], c.ents[p+1:]...)
	for i := p; i < len(c.ents); i++ {
		c.sparse.Put(c.ents[i], uint32(i))
	}
	switch st {
	case StageRemoved:
		c.removedEnd--
		c.aliveEnd--
	case StageAlive:
		c.aliveEnd--
	case StageAdded:
		// ADDED's upper bound is len(c.ents) implicitly; nothing to
		// adjust.
	}
}

// Forget purges entities entirely, in whatever stage they currently
// occupy, as if they had never been added. Used when a command buffer
// is merged to drop entities created and destroyed within the same
// buffer before that buffer is ever folded into the parent state (spec
// §4.4 steps 1/4): such an entity must leave zero observable trace,
// not a REMOVED entry a lifecycle filter could pick up next tick.
func (c *container[T]) Forget(entities []Entity) {
	for _, e := range entities {
		idx, ok := c.sparse.Get(e)
		if !ok {
			continue
		}
		wasPresent := c.stageAt(int(idx)) != StageRemoved
		c.removeAt(int(idx))
		if wasPresent {
			c.setPresent(e, false)
		}
	}
}

// AddZero adds entities with T's zero value, used for flag components
// and for AddComponent calls that don't supply a payload.
func (c *container[T]) AddZero(entities []Entity) {
	c.addMany(entities, nil, false)
}

// Add places entities into ADDED (or resurrects/overwrites per the
// rules in DESIGN.md open question 1), with payload semantics
// controlled by repeat: a single payload applied to every entity when
// repeat is true, one payload per entity otherwise.
func (c *container[T]) Add(entities []Entity, payload []T, repeat bool) error {
	if payload != nil && !repeat && len(payload) < len(entities) {
		return ArityMismatchError{Entities: len(entities), Payloads: len(payload)}
	}
	c.addMany(entities, payload, repeat)
	return nil
}

func (c *container[T]) addMany(entities []Entity, payload []T, repeat bool) {
	for i, e := range entities {
		var val T
		switch {
		case payload == nil:
		case repeat:
			if c.decl.copyFn != nil {
				c.decl.copyFn(&val, &payload[0])
			} else {
				val = payload[0]
			}
		default:
			val = payload[i]
		}
		c.addOne(e, val, payload != nil)
	}
}

func (c *container[T]) addOne(e Entity, val T, hasVal bool) {
	if idx, ok := c.sparse.Get(e); ok {
		p := int(idx)
		if c.stageAt(p) == StageRemoved {
			c.moveRemovedToAdded(p)
			p, _ = c.indexOf(e)
		}
		// Already present (ALIVE/ADDED, or just resurrected into
		// ADDED above): overwrite in place, no further stage change.
		if hasVal {
			c.dense[p] = val
		}
		c.setPresent(e, true)
		return
	}

	// Brand new entity: append, landing in ADDED (the tail region).
	c.dense = append(c.dense, val)
	c.ents = append(c.ents, e)
	c.sparse.Put(e, uint32(len(c.ents)-1))
	c.setPresent(e, true)
}

// Destroy moves entities present in ADDED or ALIVE into REMOVED. A
// non-present entity is a no-op.
func (c *container[T]) Destroy(entities []Entity) {
	for _, e := range entities {
		idx, ok := c.sparse.Get(e)
		if !ok {
			continue
		}
		p := int(idx)
		switch c.stageAt(p) {
		case StageAdded:
			c.moveAddedToRemoved(p)
		case StageAlive:
			c.moveAliveToRemoved(p)
		case StageRemoved:
			// already removed; no-op.
			continue
		}
		c.setPresent(e, false)
	}
}

// CopyTo gathers payloads for entities into dst, in order. Every
// entity must currently be present (any stage); querying an absent
// entity is a contract violation (fatal) — an out-of-bounds entity
// reference, the closest Go-idiomatic analogue to a misaligned
// gather/scatter pointer in the representation this replaces.
func (c *container[T]) CopyTo(entities []Entity, dst []T) {
	for i, e := range entities {
		idx, ok := c.sparse.Get(e)
		if !ok {
			panic(bark.AddTrace(UnknownComponentError{Key: c.decl.key}))
		}
		v := c.dense[idx]
		if c.decl.copyFn != nil {
			c.decl.copyFn(&dst[i], &v)
		} else {
			dst[i] = v
		}
	}
}

// CopyFrom scatters src back into storage for entities, keyed by
// position, with the same repeat convention as Add.
func (c *container[T]) CopyFrom(entities []Entity, src []T, repeat bool) error {
	if !repeat && len(src) < len(entities) {
		return ArityMismatchError{Entities: len(entities), Payloads: len(src)}
	}
	for i, e := range entities {
		idx, ok := c.sparse.Get(e)
		if !ok {
			panic(bark.AddTrace(UnknownComponentError{Key: c.decl.key}))
		}
		var v T
		if repeat {
			v = src[0]
		} else {
			v = src[i]
		}
		if c.decl.copyFn != nil {
			c.decl.copyFn(&c.dense[idx], &v)
		} else {
			c.dense[idx] = v
		}
	}
	return nil
}

// Promote folds ADDED into ALIVE and discards REMOVED.
func (c *container[T]) Promote() {
	if c.decl.destroyFn != nil {
		for i := 0; i < c.removedEnd; i++ {
			c.decl.destroyFn(&c.dense[i])
		}
	}
	for i := 0; i < c.removedEnd; i++ {
		c.sparse.Del(c.ents[i])
	}
	n := c.removedEnd
	if n > 0 {
		copy(c.dense, c.dense[n:])
		copy(c.ents, c.ents[n:])
		c.dense = c.dense[:len(c.dense)-n]
		c.ents = c.ents[:len(c.ents)-n]
		for i := range c.ents {
			c.sparse.Put(c.ents[i], uint32(i))
		}
	}
	c.removedEnd = 0
	c.aliveEnd = len(c.ents)
}

// Remap rewrites entity ids per mapping for entities satisfying pred,
// used by CommandBuffer merge to turn provisional ids real.
func (c *container[T]) Remap(mapping map[Entity]Entity, pred func(Entity) bool) {
	for i, e := range c.ents {
		if !pred(e) {
			continue
		}
		ne, ok := mapping[e]
		if !ok {
			continue
		}
		c.sparse.Del(e)
		c.ents[i] = ne
		c.sparse.Put(ne, uint32(i))
	}
}

// Merge unions other's contents into c: other's ADDED/ALIVE entities
// are added here with their payloads (landing in ADDED when c does not
// hold them, keeping their stage in c otherwise, and re-added into
// ADDED when c has them REMOVED), and other's REMOVED entities are
// destroyed here. Asserts key equality.
func (c *container[T]) Merge(other containerBase) error {
	if other.Key() != c.decl.key {
		return ContainerKeyMismatchError{Want: c.decl.key, Got: other.Key()}
	}
	oc, ok := other.(*container[T])
	if !ok {
		return ContainerKeyMismatchError{Want: c.decl.key, Got: other.Key()}
	}

	live := oc.Entities(StageAdded | StageAlive)
	if len(live) > 0 {
		payload := make([]T, len(live))
		oc.CopyTo(live, payload)
		c.addMany(live, payload, false)
	}
	removed := oc.Entities(StageRemoved)
	if len(removed) > 0 {
		c.Destroy(removed)
	}
	return nil
}

var _ containerBase = (*container[struct{}])(nil)

func containerFor[T any](base containerBase) *container[T] {
	return base.(*container[T])
}
