package core_test

import (
	"context"
	"fmt"

	"github.com/tickforge/core"
)

// Position is a simple 2D coordinate component.
type Position struct {
	X, Y float64
}

// Velocity is a simple 2D movement component.
type Velocity struct {
	X, Y float64
}

// Example_basic shows entity creation, a filter group, and a system
// that moves every matching entity by one tick.
func Example_basic() {
	state := core.NewState(core.DefaultConfig())

	position := core.DeclareTrivial[Position]()
	velocity := core.DeclareTrivial[Velocity]()

	entities, _ := state.CreateEntities(3, position, velocity)
	for i, e := range entities {
		core.Set(state, velocity, e, Velocity{X: float64(i + 1)})
	}

	group := core.NewFilterBuilder().Filters(position, velocity).Build()
	pack := core.NewDependencyPack(group, core.ModeIndirect, core.SlicePartial).
		ReadWrite(position).Read(velocity)

	move := func(state *core.State, cb *core.CommandBuffer, batch []core.Entity) error {
		positions := core.Resolve(state, pack, position, batch)
		velocities := core.Resolve(state, pack, velocity, batch)
		for i := range batch {
			positions.Values[i].X += velocities.Values[i].X
		}
		return positions.WriteBack()
	}

	handle := core.NewSystemHandle("move", core.Serial, pack, []*core.DependencyPack{pack}, move)
	if err := state.DeclareSystem(handle); err != nil {
		fmt.Println("declare error:", err)
		return
	}

	if err := state.Tick(context.Background(), 1.0); err != nil {
		fmt.Println("tick error:", err)
		return
	}

	for i, e := range entities {
		p := core.Get(state, position, e)
		fmt.Printf("entity %d: x=%.0f\n", i, p.X)
	}

	// Output:
	// entity 0: x=1
	// entity 1: x=2
	// entity 2: x=3
}

// Example_lifecycleFilters shows an on_add filter firing for entities
// created this tick, and then going silent on the next tick once they
// are merely alive.
func Example_lifecycleFilters() {
	state := core.NewState(core.DefaultConfig())
	health := core.DeclareTrivial[Position]()

	group := core.NewFilterBuilder().OnAdd(health).Build()
	pack := core.NewDependencyPack(group, core.ModeIndirect, core.SlicePartial).Read(health)

	watch := func(state *core.State, cb *core.CommandBuffer, batch []core.Entity) error {
		fmt.Printf("on_add saw %d entities\n", len(batch))
		return nil
	}

	handle := core.NewSystemHandle("watch", core.Serial, pack, []*core.DependencyPack{pack}, watch)
	if err := state.DeclareSystem(handle); err != nil {
		fmt.Println("declare error:", err)
		return
	}

	if _, err := state.CreateEntities(2, health); err != nil {
		fmt.Println("create error:", err)
		return
	}

	ctx := context.Background()
	if err := state.Tick(ctx, 1.0); err != nil {
		fmt.Println("tick error:", err)
		return
	}
	if err := state.Tick(ctx, 1.0); err != nil {
		fmt.Println("tick error:", err)
		return
	}

	// Output:
	// on_add saw 2 entities
	// on_add saw 0 entities
}
