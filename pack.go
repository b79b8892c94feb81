package core

// MaterializeMode controls where a dependency pack's binding snapshot
// is allocated. A filter group's matching entities are rarely
// contiguous within a container's dense array (sparse-set ordering
// depends on add/remove history, not a pack's own entity order), so
// neither mode here can alias live storage directly via a raw pointer:
// both copy a per-entity snapshot out via Resolve and require
// WriteBack to scatter mutations back. The two modes differ only in
// where that snapshot lives.
type MaterializeMode uint8

const (
	// ModeIndirect allocates the snapshot as an ordinary heap slice,
	// unbounded and GC-owned — cheap to reason about, no capacity
	// planning required.
	ModeIndirect MaterializeMode = iota
	// ModeDirect draws the snapshot from the state's capacity-bounded
	// scratch arena (arena.go): each Resolve allocates a fresh slab
	// whose size is charged against the arena's capacity, and the
	// charge is reset at tick end.
	ModeDirect
)

// Slicing controls whether a pack's materialized entity list may be
// split across worker batches during parallel dispatch, or must be
// handed to a system whole.
type Slicing uint8

const (
	// SlicePartial allows the scheduler to divide this pack's entities
	// across workers.
	SlicePartial Slicing = iota
	// SliceFull requires the whole pack be handed to a single
	// invocation; a system with any full-slice pack cannot run with
	// more than one worker this tick.
	SliceFull
)

// bindingSpec is the key-erased description of one component binding
// within a DependencyPack: which component, and whether it is bound
// read-only or read-write.
type bindingSpec struct {
	component Component
	readWrite bool
}

// DependencyPack is a system's declared view over a filter group's
// matching entities: which components it touches, in which
// materialization mode, and whether it tolerates partial slicing.
type DependencyPack struct {
	Group    *FilterGroup
	Mode     MaterializeMode
	Slicing  Slicing
	bindings []bindingSpec
}

// NewDependencyPack declares a pack over group, with the given
// materialization mode and slicing policy.
func NewDependencyPack(group *FilterGroup, mode MaterializeMode, slicing Slicing) *DependencyPack {
	return &DependencyPack{Group: group, Mode: mode, Slicing: slicing}
}

// Read declares a read-only binding to component c.
func (p *DependencyPack) Read(c Component) *DependencyPack {
	p.bindings = append(p.bindings, bindingSpec{component: c, readWrite: false})
	return p
}

// ReadWrite declares a read-write binding to component c.
func (p *DependencyPack) ReadWrite(c Component) *DependencyPack {
	p.bindings = append(p.bindings, bindingSpec{component: c, readWrite: true})
	return p
}

// Binding is the typed, resolved view of one bindingSpec for a single
// invocation: Entities is the (possibly sliced) entity list the
// invocation covers, Values is a private copy of the same length, on
// the heap (indirect mode) or in the scratch arena (direct mode).
type Binding[T any] struct {
	Entities []Entity
	Values   []T

	direct    bool
	component *container[T]
}

// Resolve materializes a T-typed binding to ct over entities according
// to pack's mode, for use inside a SystemFunc. Indirect mode copies out
// a throwaway snapshot that a system may freely mutate and must write
// back; direct mode draws the snapshot from state's scratch arena
// instead of the heap.
func Resolve[T any](state *State, pack *DependencyPack, ct ComponentType[T], entities []Entity) Binding[T] {
	cont := containerFor[T](state.containerFor(ct))
	if pack.Mode == ModeIndirect {
		values := make([]T, len(entities))
		cont.CopyTo(entities, values)
		return Binding[T]{Entities: entities, Values: values, direct: false, component: cont}
	}
	values := arenaSlice[T](state.arena, len(entities))
	cont.CopyTo(entities, values)
	return Binding[T]{Entities: entities, Values: values, direct: true, component: cont}
}

// WriteBack scatters a binding's (possibly mutated) Values back into
// live storage. A system must call this for every binding whose values
// it mutated before returning, regardless of mode: Values is a copy in
// both modes, so mutations reach storage only through WriteBack.
func (b Binding[T]) WriteBack() error {
	return b.component.CopyFrom(b.Entities, b.Values, false)
}
