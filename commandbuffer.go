package core

// CommandBuffer is a per-system deferred-mutation journal: entity
// creation, destruction, and component add/remove calls made by a
// system body are recorded here instead of touching live state
// directly, then merged back at tick end.
//
// Provisional ids are drawn from a private allocator seeded at the
// parent State's high-water mark at buffer-creation time, so they
// never collide with ids the parent had already handed out. Sibling
// buffers created in the same tick share that seed and may mint the
// same provisional ids; merge gives each buffer's surviving ids fresh
// real ids from the parent and rewrites every container reference
// accordingly.
type CommandBuffer struct {
	localBase Entity
	alloc     *entityAllocator

	containers map[ComponentKey]containerBase
	order      []ComponentKey // insertion order, for deterministic merge

	destroyed []Entity
	touched   []Entity
}

func newCommandBuffer(parent *State) *CommandBuffer {
	base := parent.alloc.high()
	return &CommandBuffer{
		localBase:  base,
		alloc:      &entityAllocator{next: uint32(base)},
		containers: map[ComponentKey]containerBase{},
	}
}

func (cb *CommandBuffer) containerFor(c Component) containerBase {
	if cont, ok := cb.containers[c.Key()]; ok {
		return cont
	}
	cont := c.newContainer()
	cb.containers[c.Key()] = cont
	cb.order = append(cb.order, c.Key())
	return cont
}

// CreateEntities allocates n provisional entities and adds each of
// components to them with its zero value.
func (cb *CommandBuffer) CreateEntities(n int, components ...Component) ([]Entity, error) {
	first, err := cb.alloc.alloc(n)
	if err != nil {
		return nil, err
	}
	ids := make([]Entity, n)
	for i := range ids {
		ids[i] = first + Entity(i)
	}
	for _, c := range components {
		cb.containerFor(c).AddZero(ids)
	}
	cb.touched = append(cb.touched, ids...)
	return ids, nil
}

// DestroyEntities records entities (provisional or real) for
// destruction across every component at merge time.
func (cb *CommandBuffer) DestroyEntities(entities ...Entity) {
	cb.destroyed = append(cb.destroyed, entities...)
	cb.touched = append(cb.touched, entities...)
}

// BufferAddComponent adds ct to entities within this buffer, with the
// same payload conventions as State's own AddComponent: zero payloads
// means the zero value, one payload repeats across every entity, and
// one payload per entity otherwise.
func BufferAddComponent[T any](cb *CommandBuffer, ct ComponentType[T], entities []Entity, payload ...T) error {
	cont := containerFor[T](cb.containerFor(ct))
	var err error
	switch len(payload) {
	case 0:
		cont.AddZero(entities)
	case 1:
		err = cont.Add(entities, payload, true)
	default:
		err = cont.Add(entities, payload, false)
	}
	cb.touched = append(cb.touched, entities...)
	return err
}

// BufferRemoveComponent removes c from entities within this buffer.
// Entities are staged into the buffer's container first, so one that
// holds c only in the parent state still ends up REMOVED here, which
// merge forwards to the parent's container.
func BufferRemoveComponent(cb *CommandBuffer, c Component, entities []Entity) {
	cont := cb.containerFor(c)
	cont.AddZero(entities)
	cont.Destroy(entities)
	cb.touched = append(cb.touched, entities...)
}

// merge folds cb into state. Per spec §4.4:
//
//  1. Entities created *and* destroyed within this buffer (step 1:
//     "created" means added but not destroyed in the buffer) never
//     existed as far as the parent is concerned: they receive no real
//     id, are purged from every container before remap/merge, and are
//     excluded from both the destroyed-forwarding and change-tracker
//     passes (step 4's "drop" branch).
//  2. Every surviving provisional id becomes a real id (step 2),
//     every touched container is remapped then merged into the
//     parent's container of the same key (step 3), pre-existing
//     destroyed entities are forwarded to the parent's destroy (step
//     4's "forward" branch), and every surviving touched entity
//     (remapped) is marked in the parent's change tracker (step 5).
func (cb *CommandBuffer) merge(state *State) error {
	isProvisional := func(e Entity) bool { return e >= cb.localBase }

	deadBorn := map[Entity]bool{}
	var preExisting []Entity
	for _, e := range cb.destroyed {
		if isProvisional(e) {
			deadBorn[e] = true
		} else {
			preExisting = append(preExisting, e)
		}
	}

	n := int(cb.alloc.high() - cb.localBase)
	var mapping map[Entity]Entity
	if n > 0 {
		survivors := make([]Entity, 0, n)
		for i := 0; i < n; i++ {
			e := cb.localBase + Entity(i)
			if !deadBorn[e] {
				survivors = append(survivors, e)
			}
		}
		if len(survivors) > 0 {
			real, err := state.alloc.alloc(len(survivors))
			if err != nil {
				return err
			}
			mapping = make(map[Entity]Entity, len(survivors))
			for i, e := range survivors {
				mapping[e] = real + Entity(i)
			}
		}
	}

	var deadList []Entity
	if len(deadBorn) > 0 {
		deadList = make([]Entity, 0, len(deadBorn))
		for e := range deadBorn {
			deadList = append(deadList, e)
		}
	}

	for _, key := range cb.order {
		cont := cb.containers[key]
		if len(deadList) > 0 {
			cont.Forget(deadList)
		}
		if len(mapping) > 0 {
			cont.Remap(mapping, isProvisional)
		}
		parentCont, ok := state.containers[key]
		if !ok {
			// Parent has no container of this key yet: move the
			// buffer's container in directly rather than merging into
			// one that doesn't exist. Its REMOVED entries refer to a
			// component the parent never held, so they are dropped.
			key := key
			cont.Forget(cont.Entities(StageRemoved))
			cont.setSig(func(e Entity, present bool) { state.sig.set(e, key, present) })
			state.containers[key] = cont
			for _, e := range cont.Entities(StageAlive | StageAdded) {
				state.sig.set(e, key, true)
			}
			continue
		}
		if err := parentCont.Merge(cont); err != nil {
			return err
		}
	}

	if len(preExisting) > 0 {
		state.destroyEverywhere(preExisting)
	}

	for _, e := range cb.touched {
		if deadBorn[e] {
			continue
		}
		if re, ok := mapping[e]; ok {
			e = re
		}
		state.changes.mark(e)
	}
	return nil
}
