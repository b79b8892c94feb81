package core

import "context"

// ThreadingMode selects whether a system's invocation may be sliced
// across workers.
type ThreadingMode uint8

const (
	Serial ThreadingMode = iota
	Parallel
)

// SystemFunc is a system invocation: it receives the live state (for
// reads outside its declared packs, e.g. globals), a private command
// buffer for deferred mutation, and the (possibly sliced) entity batch
// it is responsible for this invocation. Implementations that bind
// packs are responsible for resolving those bindings over entities and
// calling WriteBack on every mutated binding before returning.
type SystemFunc func(state *State, cb *CommandBuffer, entities []Entity) error

// SystemHandle is a registered system: its name (for dedup/revocation),
// threading mode, declared dependency packs (for the cyclic-write
// check and for slicing), which pack (if any) drives its entity batch,
// and its invocation body.
type SystemHandle struct {
	name    string
	mode    ThreadingMode
	packs   []*DependencyPack
	driving *DependencyPack
	invoke  SystemFunc
}

// NewSystemHandle declares a system named name. driving, if non-nil,
// must also appear in packs; its resolved entity list becomes the
// system's batch and the basis for any parallel slicing. A system
// with no driving pack is invoked once per tick with a nil entity
// batch (e.g. a purely global system).
func NewSystemHandle(name string, mode ThreadingMode, driving *DependencyPack, packs []*DependencyPack, invoke SystemFunc) *SystemHandle {
	return &SystemHandle{name: name, mode: mode, packs: packs, driving: driving, invoke: invoke}
}

func detectCyclicPack(h *SystemHandle) error {
	writers := map[ComponentKey]bool{}
	for _, p := range h.packs {
		for _, b := range p.bindings {
			if !b.readWrite {
				continue
			}
			if writers[b.component.Key()] {
				return CyclicPackError{System: h.name, Component: b.component.Key()}
			}
			writers[b.component.Key()] = true
		}
	}
	return nil
}

// scheduler holds every registered system plus the registrations and
// revocations requested mid-tick, integrated only once the tick
// finishes.
type scheduler struct {
	handles []*SystemHandle
	byName  map[string]*SystemHandle

	pendingAdd    []*SystemHandle
	pendingRemove map[string]bool
}

func newScheduler() *scheduler {
	return &scheduler{
		byName:        map[string]*SystemHandle{},
		pendingRemove: map[string]bool{},
	}
}

// declare registers h immediately (used when the state is not
// ticking); integrate is used instead while a tick is in flight.
func (s *scheduler) declare(h *SystemHandle) error {
	if _, exists := s.byName[h.name]; exists {
		return DuplicateSystemError{Name: h.name}
	}
	if err := detectCyclicPack(h); err != nil {
		return err
	}
	s.byName[h.name] = h
	s.handles = append(s.handles, h)
	return nil
}

func (s *scheduler) revoke(name string) {
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	for i, h := range s.handles {
		if h.name == name {
			s.handles = append(s.handles[:i:i], s.handles[i+1:]...)
			break
		}
	}
}

// integrate applies deferred registrations/revocations accumulated
// during the tick just finished. filters receives the release calls a
// pending revoke owes its packs' filter groups — the same release the
// synchronous RevokeSystem path performs immediately, just deferred to
// this point for a mid-tick revoke — so a group dropped by its last
// referencing system is actually eligible for filterEvaluator.
// dropUnreferenced on the next tick (spec §4.3 step 1).
func (s *scheduler) integrate(filters *filterEvaluator) error {
	for _, h := range s.pendingAdd {
		if err := s.declare(h); err != nil {
			return err
		}
	}
	s.pendingAdd = nil
	for name := range s.pendingRemove {
		if h, ok := s.byName[name]; ok {
			for _, p := range h.packs {
				filters.release(p.Group)
			}
		}
		s.revoke(name)
	}
	s.pendingRemove = map[string]bool{}
	return nil
}

// workerCountFor computes how many workers should split a system's
// batch: start from the configured worker count (plus the calling goroutine),
// clamp to how many workers the driving pack's entities can feed at
// least MinEntitiesPerWorker entities each, and collapse to one
// worker entirely when the system isn't Parallel, has no entities, or
// declares any full-slice pack.
func workerCountFor(h *SystemHandle, cfg Config, driveLen int) int {
	if h.mode != Parallel || driveLen == 0 {
		return 1
	}
	for _, p := range h.packs {
		if p.Slicing == SliceFull {
			return 1
		}
	}
	w := cfg.WorkerCount + 1
	if w < 1 {
		w = 1
	}
	maxByMinBatch := driveLen / cfg.MinEntitiesPerWorker
	if maxByMinBatch < 1 {
		maxByMinBatch = 1
	}
	if w > maxByMinBatch {
		w = maxByMinBatch
	}
	if w > driveLen {
		w = driveLen
	}
	if w < 1 {
		w = 1
	}
	return w
}

// sliceEntities splits entities into w contiguous batches of equal size,
// with the last chunk absorbing whatever remainder doesn't divide evenly.
func sliceEntities(entities []Entity, w int) [][]Entity {
	if w <= 1 || len(entities) == 0 {
		return [][]Entity{entities}
	}
	n := len(entities)
	base := n / w
	out := make([][]Entity, 0, w)
	start := 0
	for i := 0; i < w; i++ {
		size := base
		if i == w-1 {
			size = n - start
		}
		if size == 0 {
			continue
		}
		out = append(out, entities[start:start+size])
		start += size
	}
	return out
}

// run invokes every registered system once, in registration order,
// each against its own fresh command buffer(s). No buffer is merged
// here: systems within one tick are isolated from each other's pending
// writes, and merging only happens once, at tick end, after promotion.
// run returns every buffer produced, in system-registration order, for
// the caller to merge later.
func (s *scheduler) run(ctx context.Context, state *State, pool WorkerPool, cfg Config) ([]*CommandBuffer, error) {
	var produced []*CommandBuffer
	for _, h := range s.handles {
		var entities []Entity
		if h.driving != nil {
			entities = state.resolvedEntitiesFor(h.driving)
		}

		w := workerCountFor(h, cfg, len(entities))
		if w <= 1 {
			cb := newCommandBuffer(state)
			if err := h.invoke(state, cb, entities); err != nil {
				return produced, err
			}
			produced = append(produced, cb)
			continue
		}

		batches := sliceEntities(entities, w)
		buffers := make([]*CommandBuffer, len(batches))
		tasks := make([]func() error, len(batches))
		for i, batch := range batches {
			i, batch := i, batch
			buffers[i] = newCommandBuffer(state)
			tasks[i] = func() error {
				return h.invoke(state, buffers[i], batch)
			}
		}
		if err := pool.Run(ctx, tasks); err != nil {
			return produced, err
		}
		produced = append(produced, buffers...)
	}
	return produced, nil
}
