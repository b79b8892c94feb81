package core

import (
	"reflect"

	"github.com/TheBitDrifter/bark"
)

// scratchArena is a per-tick, capacity-bounded scratch region for the
// gather buffers of direct-mode bindings. Each request gets freshly
// allocated backing storage whose byte size is charged against a fixed
// capacity; the charge resets once per tick. It is
// implemented as typed Go slices rather than raw bytes behind an
// unsafe.Pointer: Go's allocator already guarantees alignment and the
// GC already owns the memory, so byte-level alignment bookkeeping has
// no counterpart here (see DESIGN.md open question 5). What matters
// operationally is the capacity ceiling and the reset-between-ticks
// discipline: a pack's direct-mode buffer is only valid for the tick
// it was resolved in.
type scratchArena struct {
	capacityBytes int
	usedBytes     int
	slabs         map[reflect.Type]any
}

func newScratchArena(capacityBytes int) *scratchArena {
	return &scratchArena{
		capacityBytes: capacityBytes,
		slabs:         map[reflect.Type]any{},
	}
}

// reset drops every slab handed out this tick and clears the tick's
// byte accounting. Called once per tick, after command buffer
// merge.
func (a *scratchArena) reset() {
	a.usedBytes = 0
	a.slabs = map[reflect.Type]any{}
}

// arenaSlice returns a slab of exactly n elements of T from the arena,
// allocating fresh backing storage and charging its size against the
// tick's capacity. Pack resolution (pack.go) calls this once per
// direct-mode binding per tick.
func arenaSlice[T any](a *scratchArena, n int) []T {
	var zero T
	size := int(reflect.TypeOf(zero).Size()) * n
	if size < 0 {
		size = 0
	}
	if a.usedBytes+size > a.capacityBytes {
		panic(bark.AddTrace(ArenaExhaustedError{Requested: a.usedBytes + size, Capacity: a.capacityBytes}))
	}
	a.usedBytes += size
	slab := make([]T, n)
	t := reflect.TypeOf(zero)
	a.slabs[t] = slab
	return slab
}
