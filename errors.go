package core

import "fmt"

// LockedStateError describes a direct (non-enqueued) mutation
// attempted while the state is ticking or draining. No State method
// returns it: State queues such mutations instead.
type LockedStateError struct {
	Op string
}

func (e LockedStateError) Error() string {
	return fmt.Sprintf("core: state is locked, cannot perform %q directly", e.Op)
}

// UnknownComponentError is the panic value (wrapped by bark.AddTrace)
// when an operation references a component key that has no container
// on the state, or an entity that the component's container does not
// hold.
type UnknownComponentError struct {
	Key ComponentKey
}

func (e UnknownComponentError) Error() string {
	return fmt.Sprintf("core: component key %d is not registered or not held by the entity", e.Key)
}

// DuplicateSystemError is a registration-time failure: a system handle
// was declared twice with the same identity.
type DuplicateSystemError struct {
	Name string
}

func (e DuplicateSystemError) Error() string {
	return fmt.Sprintf("core: system %q already declared", e.Name)
}

// CyclicPackError is a registration-time failure: a system's
// dependency packs reference the same read-write component through
// more than one pack, which would make slicing order-dependent.
type CyclicPackError struct {
	System    string
	Component ComponentKey
}

func (e CyclicPackError) Error() string {
	return fmt.Sprintf("core: system %q binds component %d read-write in more than one pack", e.System, e.Component)
}

// ContainerKeyMismatchError is a fatal contract violation: an attempt
// to merge two containers of differing component keys.
type ContainerKeyMismatchError struct {
	Want, Got ComponentKey
}

func (e ContainerKeyMismatchError) Error() string {
	return fmt.Sprintf("core: cannot merge container for key %d into container for key %d", e.Got, e.Want)
}

// ArityMismatchError is a fatal contract violation: copy_from was
// given fewer source payloads than entities, without repeat set.
type ArityMismatchError struct {
	Entities, Payloads int
}

func (e ArityMismatchError) Error() string {
	return fmt.Sprintf("core: arity mismatch, %d entities but %d payloads", e.Entities, e.Payloads)
}

// ArenaExhaustedError is a fatal configuration error: the scratch
// arena's fixed capacity was exceeded during pack materialization.
type ArenaExhaustedError struct {
	Requested, Capacity int
}

func (e ArenaExhaustedError) Error() string {
	return fmt.Sprintf("core: scratch arena exhausted, requested %d bytes of %d capacity", e.Requested, e.Capacity)
}

// EntitySpaceExhaustedError is a fatal error: the 32-bit entity id
// space has been fully allocated.
type EntitySpaceExhaustedError struct{}

func (e EntitySpaceExhaustedError) Error() string {
	return "core: entity id space exhausted"
}
