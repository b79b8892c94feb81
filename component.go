package core

import (
	"reflect"
	"sync"
)

// Trait classifies how a component type's storage and lifecycle must
// be handled.
type Trait uint8

const (
	// TraitFlag marks a zero-sized, presence-only component.
	TraitFlag Trait = iota
	// TraitTrivial marks a bitwise-copyable, trivially destructible
	// component, stored without user-supplied copy/destroy thunks.
	TraitTrivial
	// TraitComplex marks a component with non-trivial copy/move/
	// destroy, requiring explicit copy and destroy thunks.
	TraitComplex
)

// ComponentKey is a stable key derived from a component type's
// identity, assigned the first time that Go type is declared in the
// process, standing in for a compile-time type hash.
type ComponentKey uint32

var (
	keyRegistryMu sync.Mutex
	keyRegistry   = map[reflect.Type]ComponentKey{}
	nextKey       ComponentKey = 1
)

func keyForType(t reflect.Type) ComponentKey {
	keyRegistryMu.Lock()
	defer keyRegistryMu.Unlock()
	if k, ok := keyRegistry[t]; ok {
		return k
	}
	k := nextKey
	nextKey++
	keyRegistry[t] = k
	return k
}

// ComponentType is the handle a caller uses to add/remove/query a
// specific component type T on entities. It carries everything the
// staged sparse container for T needs: the stable key, the trait, and
// (for TraitComplex) the copy/destroy thunks, and addresses a
// container[T] directly.
type ComponentType[T any] struct {
	key       ComponentKey
	trait     Trait
	copyFn    func(dst, src *T)
	destroyFn func(*T)
}

// Key returns the component's stable key.
func (c ComponentType[T]) Key() ComponentKey { return c.key }

// Trait returns the component's storage trait.
func (c ComponentType[T]) Trait() Trait { return c.trait }

// Component is the key-erased view of a ComponentType[T], used
// wherever a filter or pack needs to reference a component type
// without being generic over it.
type Component interface {
	Key() ComponentKey
	Trait() Trait
	newContainer() containerBase
}

func (c ComponentType[T]) newContainer() containerBase {
	return newContainer(c)
}

var (
	_ Component = ComponentType[struct{}]{}
)

// DeclareFlag declares a zero-sized, presence-only component type.
func DeclareFlag[T any]() ComponentType[T] {
	return ComponentType[T]{
		key:   keyForType(reflect.TypeFor[T]()),
		trait: TraitFlag,
	}
}

// DeclareTrivial declares a bitwise-copyable component type. Go values
// are already copied by assignment, so no thunks are required; the
// trait only affects documentation/introspection.
func DeclareTrivial[T any]() ComponentType[T] {
	return ComponentType[T]{
		key:   keyForType(reflect.TypeFor[T]()),
		trait: TraitTrivial,
	}
}

// DeclareComplex declares a component type with non-trivial copy or
// destroy semantics (e.g. it owns a resource handle). copyFn is
// invoked whenever the container must duplicate a payload (gather into
// the scratch arena, repeat-add); destroyFn is invoked once per entity
// when its slot is promoted out of REMOVED. Either may be nil, in
// which case a plain Go assignment / no-op is used respectively.
func DeclareComplex[T any](copyFn func(dst, src *T), destroyFn func(*T)) ComponentType[T] {
	return ComponentType[T]{
		key:       keyForType(reflect.TypeFor[T]()),
		trait:     TraitComplex,
		copyFn:    copyFn,
		destroyFn: destroyFn,
	}
}
