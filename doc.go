/*
Package core provides a data-oriented Entity-Component-System runtime
for real-time simulations.

Entities are lightweight 32-bit identifiers. Components are attached
per entity through staged sparse containers (one container per
component type), which keep added-this-tick, alive, and removed-this-
tick entities in separate dense ranges so lifecycle-aware filters
(on_add, on_remove, on_combine, on_break) can be answered without
scanning the whole population. Systems are registered against filter
groups and dependency packs, and run once per tick under a scheduler
that can fan partial packs out across an injected worker pool.

Core Concepts:

  - Entity: a 32-bit identifier for a simulated object.
  - Component: a typed payload attached to at most one entity per type.
  - Container: per-component-type staged sparse storage.
  - FilterGroup: a declarative, deduplicated query over component
    presence and lifecycle events.
  - Pack: a materialization of a filter group's result plus its
    read/write component bindings, handed to one system invocation.
  - CommandBuffer: a per-system journal of deferred mutations, merged
    into the state at the end of the tick that produced it.

Basic Usage:

	state := core.NewState(core.DefaultConfig())

	position := core.DeclareTrivial[Position]()
	velocity := core.DeclareTrivial[Velocity]()

	entities, _ := state.CreateEntities(100, position, velocity)
	for _, e := range entities {
		core.Set(state, velocity, e, Velocity{X: 1})
	}

	group := core.NewFilterBuilder().Filters(position, velocity).Build()
	pack := core.NewDependencyPack(group, core.ModeIndirect, core.SlicePartial).
		ReadWrite(position).Read(velocity)

	state.DeclareSystem(core.NewSystemHandle("move", core.Serial, pack,
		[]*core.DependencyPack{pack}, moveSystem))

	state.Tick(context.Background(), 1.0/60.0)

The core does not provide rendering, windowing, input, or file format
loaders; those are external collaborators that a caller wires in.
Parallel work is dispatched through the WorkerPool interface, which a
caller may implement; DefaultWorkerPool is provided as a ready-to-use
implementation.
*/
package core
