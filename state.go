package core

import (
	"context"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
)

const (
	lockBitTicking uint32 = iota
	lockBitDraining
)

// State is the runtime root: entity allocation, every component's
// staged container, the filter evaluator, the scheduler, the scratch
// arena, and the tri-state tick lock all live here, owning per-component
// staged containers instead of archetype tables.
type State struct {
	alloc   *entityAllocator
	changes *changeTracker
	filters *filterEvaluator
	sched   *scheduler
	arena   *scratchArena
	pool    WorkerPool
	cfg     Config

	containers map[ComponentKey]containerBase
	sig        *signatureSet
	reg        *registry

	locks mask.Mask256

	opQueue entityOperationsQueue

	tickN uint64
}

// NewState constructs a State ready to accept component and system
// declarations.
func NewState(cfg Config) *State {
	cfg = cfg.withDefaults()
	s := &State{
		alloc:      newEntityAllocator(),
		changes:    newChangeTracker(),
		filters:    newFilterEvaluator(),
		sched:      newScheduler(),
		arena:      newScratchArena(cfg.ScratchCapacityBytes),
		pool:       NewDefaultWorkerPool(cfg.WorkerCount),
		cfg:        cfg,
		containers: map[ComponentKey]containerBase{},
		sig:        newSignatureSet(),
	}
	s.reg = &registry{containers: s.containers, sig: s.sig}
	return s
}

// Locked reports whether the state is mid-tick (ticking or draining):
// direct State calls made while locked are queued instead of applied.
func (s *State) Locked() bool { return !s.locks.IsEmpty() }

func (s *State) lock(bit uint32)   { s.locks.Mark(bit) }
func (s *State) unlock(bit uint32) { s.locks.Unmark(bit) }

func (s *State) containerFor(c Component) containerBase {
	if cont, ok := s.containers[c.Key()]; ok {
		return cont
	}
	cont := c.newContainer()
	key := c.Key()
	cont.setSig(func(e Entity, present bool) { s.sig.set(e, key, present) })
	s.containers[c.Key()] = cont
	return cont
}

// Exists reports whether e currently holds any component in any
// stage, i.e. it was created and not yet fully promoted out of
// existence.
func (s *State) Exists(e Entity) bool {
	for _, cont := range s.containers {
		if cont.Has(e, StageAll) {
			return true
		}
	}
	return false
}

// CreateEntities creates n entities, each initialized with every
// component in components at its zero value. While the state is
// ticking, the call is queued and applied once the tick finishes.
func (s *State) CreateEntities(n int, components ...Component) ([]Entity, error) {
	if s.Locked() {
		s.opQueue.Enqueue(CreateEntitiesOperation{Count: n, Components: components})
		return nil, nil
	}
	return s.createEntitiesNow(n, components)
}

func (s *State) createEntitiesNow(n int, components []Component) ([]Entity, error) {
	first, err := s.alloc.alloc(n)
	if err != nil {
		return nil, err
	}
	ids := make([]Entity, n)
	for i := range ids {
		ids[i] = first + Entity(i)
	}
	for _, c := range components {
		s.containerFor(c).AddZero(ids)
	}
	s.changes.markAll(ids)
	return ids, nil
}

// DestroyEntities destroys entities across every registered
// component. Queued while ticking, like CreateEntities.
func (s *State) DestroyEntities(entities ...Entity) error {
	if s.Locked() {
		for _, e := range entities {
			s.opQueue.Enqueue(DestroyEntityOperation{Entity: e})
		}
		return nil
	}
	return s.destroyEntitiesNow(entities)
}

func (s *State) destroyEntitiesNow(entities []Entity) error {
	s.destroyEverywhere(entities)
	return nil
}

func (s *State) destroyEverywhere(entities []Entity) {
	for _, cont := range s.containers {
		cont.Destroy(entities)
	}
	s.changes.markAll(entities)
}

// Reset destroys entities (marking them in the change tracker like any
// destroy) and then promotes every container, so they are fully gone
// (not merely REMOVED-staged) by the time Reset returns, useful between
// simulation runs without tearing the whole State down. The promotion
// is container-wide: other entities' ADDED components become ALIVE and
// their REMOVED components are dropped as well.
func (s *State) Reset(entities ...Entity) {
	s.destroyEverywhere(entities)
	for _, cont := range s.containers {
		cont.Promote()
	}
}

func (s *State) removeComponentNow(e Entity, c Component) error {
	s.containerFor(c).Destroy([]Entity{e})
	s.changes.mark(e)
	return nil
}

// AddComponent adds ct to entities with the given payload convention
// (zero payloads: zero value; one payload: repeated; one per entity
// otherwise). Queued while the state is locked.
func AddComponent[T any](state *State, ct ComponentType[T], entities []Entity, payload ...T) error {
	if state.Locked() {
		state.opQueue.Enqueue(AddComponentOperation{
			AddFn: func(state *State) error {
				return addComponentNow(state, ct, entities, payload...)
			},
		})
		return nil
	}
	return addComponentNow(state, ct, entities, payload...)
}

func addComponentNow[T any](state *State, ct ComponentType[T], entities []Entity, payload ...T) error {
	cont := containerFor[T](state.containerFor(ct))
	var err error
	switch len(payload) {
	case 0:
		cont.AddZero(entities)
	case 1:
		err = cont.Add(entities, payload, true)
	default:
		err = cont.Add(entities, payload, false)
	}
	state.changes.markAll(entities)
	return err
}

// RemoveComponent removes c from entities. Queued while locked.
func RemoveComponent(state *State, c Component, entities []Entity) error {
	if state.Locked() {
		for _, e := range entities {
			state.opQueue.Enqueue(RemoveComponentOperation{Entity: e, Component: c})
		}
		return nil
	}
	for _, e := range entities {
		if err := state.removeComponentNow(e, c); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether e currently has ct present (ALIVE or ADDED).
func Has[T any](state *State, ct ComponentType[T], e Entity) bool {
	cont, ok := state.containers[ct.Key()]
	if !ok {
		return false
	}
	return cont.Has(e, StageAlive|StageAdded)
}

// Get copies out e's current value of ct. Panics (via bark.AddTrace)
// if e does not currently hold ct, matching container.CopyTo's
// contract.
func Get[T any](state *State, ct ComponentType[T], e Entity) T {
	base, ok := state.containers[ct.Key()]
	if !ok {
		panic(bark.AddTrace(UnknownComponentError{Key: ct.Key()}))
	}
	cont := containerFor[T](base)
	out := make([]T, 1)
	cont.CopyTo([]Entity{e}, out)
	return out[0]
}

// Set overwrites e's current value of ct in place, without touching
// its stage. e must already hold ct.
func Set[T any](state *State, ct ComponentType[T], e Entity, v T) {
	base, ok := state.containers[ct.Key()]
	if !ok {
		panic(bark.AddTrace(UnknownComponentError{Key: ct.Key()}))
	}
	cont := containerFor[T](base)
	if err := cont.CopyFrom([]Entity{e}, []T{v}, false); err != nil {
		panic(bark.AddTrace(err))
	}
}

// DeclareSystem registers a system for execution on every future tick,
// in registration order alongside any already-registered systems.
// Declarations made mid-tick are deferred to the end of the current
// tick.
func (s *State) DeclareSystem(h *SystemHandle) error {
	for _, p := range h.packs {
		s.filters.acquire(p.Group)
	}
	if s.Locked() {
		s.sched.pendingAdd = append(s.sched.pendingAdd, h)
		return nil
	}
	if err := s.sched.declare(h); err != nil {
		for _, p := range h.packs {
			s.filters.release(p.Group)
		}
		return err
	}
	return nil
}

// RevokeSystem unregisters a system by name, releasing its packs'
// filter-group references. Called mid-tick, the revoke itself (and
// the release of its filter-group references) is deferred to tick end
// via scheduler.integrate, so a group revoked mid-tick still drops out
// of the evaluator once nothing references it (spec §4.3 step 1).
func (s *State) RevokeSystem(name string) {
	if s.Locked() {
		s.sched.pendingRemove[name] = true
		return
	}
	if h, ok := s.sched.byName[name]; ok {
		for _, p := range h.packs {
			s.filters.release(p.Group)
		}
	}
	s.sched.revoke(name)
}

// resolvedEntitiesFor returns pack's resolved (transformed) entity
// list for the current tick.
func (s *State) resolvedEntitiesFor(pack *DependencyPack) []Entity {
	fr := s.filters.get(pack.Group)
	if fr == nil {
		return nil
	}
	return resolveForPack(s, pack.Group, fr.result)
}

// Tick advances the simulation by one step: lock, drop unreferenced
// filter groups, snapshot and clear the change tracker, refresh every
// live filter group against it, run every system in registration order
// against its own fresh command buffer(s), promote every container —
// so entities destroyed this tick fall out of REMOVED before any
// buffer merges — then merge every system's command buffer into state
// in the order its system ran, reset the scratch arena, integrate
// deferred system (de)registrations, and unlock. No buffer is merged
// until every system for this tick has run, so a system never observes
// an earlier system's writes from the same tick.
func (s *State) Tick(ctx context.Context, dt float64) error {
	s.lock(lockBitTicking)

	s.filters.dropUnreferenced()

	modified := s.changes.snapshot()
	s.filters.refreshAll(modified, s.reg)

	buffers, err := s.sched.run(ctx, s, s.pool, s.cfg)

	s.unlock(lockBitTicking)
	s.lock(lockBitDraining)

	for _, cont := range s.containers {
		cont.Promote()
	}

	for _, cb := range buffers {
		if merr := cb.merge(s); merr != nil && err == nil {
			err = merr
		}
	}

	s.arena.reset()

	if ierr := s.sched.integrate(s.filters); ierr != nil && err == nil {
		err = ierr
	}

	s.tickN++

	s.unlock(lockBitDraining)

	if qerr := s.opQueue.ProcessAll(s); qerr != nil && err == nil {
		err = qerr
	}

	return err
}

// TickCount returns the number of ticks completed so far.
func (s *State) TickCount() uint64 { return s.tickN }
