package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TheBitDrifter/mask"
	"github.com/kamstrup/intmap"
)

// signatureSet tracks, per entity, a mask.Mask256 bit for every
// component type currently present (ALIVE or ADDED) on it: a
// per-entity analogue of per-archetype mask matching, adapted here
// since this runtime has no archetype to hang a single shared mask
// off of.
type signatureSet struct {
	bits    map[ComponentKey]uint32
	nextBit uint32
	byEntity *intmap.Map[Entity, mask.Mask256]
}

func newSignatureSet() *signatureSet {
	return &signatureSet{
		bits:     map[ComponentKey]uint32{},
		byEntity: intmap.New[Entity, mask.Mask256](256),
	}
}

// bitFor assigns (or returns) the stable bit index for a component
// key. Mask256 has a fixed capacity; exceeding it is a configuration
// error the caller cannot recover from, so it panics.
func (s *signatureSet) bitFor(key ComponentKey) uint32 {
	if b, ok := s.bits[key]; ok {
		return b
	}
	b := s.nextBit
	s.nextBit++
	s.bits[key] = b
	return b
}

func (s *signatureSet) maskFor(components []Component) mask.Mask256 {
	var m mask.Mask256
	for _, c := range components {
		m.Mark(s.bitFor(c.Key()))
	}
	return m
}

func (s *signatureSet) of(e Entity) mask.Mask256 {
	m, _ := s.byEntity.Get(e)
	return m
}

// set flips the bit for key on entity e, tracking presence in
// ALIVE∪ADDED. It is wired as a container[T]'s sig callback at
// registration time (state.go).
func (s *signatureSet) set(e Entity, key ComponentKey, present bool) {
	m := s.of(e)
	bit := s.bitFor(key)
	if present {
		m.Mark(bit)
	} else {
		m.Unmark(bit)
	}
	s.byEntity.Put(e, m)
}

// Predicate is a user condition evaluated against a single entity and
// the state it lives in.
type Predicate func(*State, Entity) bool

// OrderBy is a total ordering relation over entities, evaluated
// against the state.
type OrderBy func(state *State, a, b Entity) bool

// FilterGroup is an immutable, deduplicated query key composed of the
// six entity-set operators, plus the optional order_by and
// on_condition transformations. Two groups built with equal operator
// sets collapse to the same evaluator-side result.
type FilterGroup struct {
	key string

	filters, except, onAdd, onRemove []Component
	onCombine, onBreak                [][]Component

	orderBy      OrderBy
	onConditions []Predicate
}

// FilterBuilder incrementally assembles a FilterGroup.
type FilterBuilder struct {
	g FilterGroup
}

// NewFilterBuilder starts a new filter group.
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

func (b *FilterBuilder) Filters(components ...Component) *FilterBuilder {
	b.g.filters = append(b.g.filters, components...)
	return b
}

func (b *FilterBuilder) Except(components ...Component) *FilterBuilder {
	b.g.except = append(b.g.except, components...)
	return b
}

func (b *FilterBuilder) OnAdd(components ...Component) *FilterBuilder {
	b.g.onAdd = append(b.g.onAdd, components...)
	return b
}

func (b *FilterBuilder) OnRemove(components ...Component) *FilterBuilder {
	b.g.onRemove = append(b.g.onRemove, components...)
	return b
}

// OnCombine registers a tuple: the group matches entities for which
// this whole tuple just became co-present this tick.
func (b *FilterBuilder) OnCombine(tuple ...Component) *FilterBuilder {
	b.g.onCombine = append(b.g.onCombine, tuple)
	return b
}

// OnBreak registers a tuple: the group matches entities for which the
// tuple was whole last tick and is no longer, this tick.
func (b *FilterBuilder) OnBreak(tuple ...Component) *FilterBuilder {
	b.g.onBreak = append(b.g.onBreak, tuple)
	return b
}

func (b *FilterBuilder) OrderBy(order OrderBy) *FilterBuilder {
	b.g.orderBy = order
	return b
}

func (b *FilterBuilder) OnCondition(pred Predicate) *FilterBuilder {
	b.g.onConditions = append(b.g.onConditions, pred)
	return b
}

// Build finalizes the group and computes its dedup key.
func (b *FilterBuilder) Build() *FilterGroup {
	g := b.g
	g.key = g.computeKey()
	return &g
}

func keyList(cs []Component) string {
	keys := make([]int, len(cs))
	for i, c := range cs {
		keys[i] = int(c.Key())
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(k)
	}
	return strings.Join(parts, ",")
}

func tupleList(ts [][]Component) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = keyList(t)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func (g FilterGroup) computeKey() string {
	return strings.Join([]string{
		"F:" + keyList(g.filters),
		"X:" + keyList(g.except),
		"A:" + keyList(g.onAdd),
		"R:" + keyList(g.onRemove),
		"C:" + tupleList(g.onCombine),
		"B:" + tupleList(g.onBreak),
	}, "|")
}

// lifecycleOnly reports whether the group's cached (incrementally
// refreshed) result is driven purely by lifecycle operators, in which
// case it is cleared every tick rather than carried forward.
func (g *FilterGroup) lifecycleOnly() bool {
	return len(g.filters) == 0 && len(g.except) == 0 &&
		(len(g.onAdd) > 0 || len(g.onRemove) > 0 || len(g.onCombine) > 0 || len(g.onBreak) > 0)
}

// filterResult is the evaluator's live, ref-counted cache entry for a
// group: the base sorted entity list a filter group currently matches.
type filterResult struct {
	group    *FilterGroup
	result   []Entity
	refCount int
	born     bool
}

// filterEvaluator owns one filterResult per distinct FilterGroup and
// refreshes them each tick using the incremental seed-then-refine
// algorithm below.
type filterEvaluator struct {
	byKey map[string]*filterResult
}

func newFilterEvaluator() *filterEvaluator {
	return &filterEvaluator{byKey: map[string]*filterResult{}}
}

// acquire returns the (possibly newly created) cache entry for group,
// incrementing its reference count. A system's dependency pack calls
// this once at registration time.
func (ev *filterEvaluator) acquire(group *FilterGroup) *filterResult {
	fr, ok := ev.byKey[group.key]
	if !ok {
		fr = &filterResult{group: group}
		ev.byKey[group.key] = fr
	}
	fr.refCount++
	return fr
}

// get looks up a group's current cache entry without affecting its
// reference count, for pack resolution mid-tick.
func (ev *filterEvaluator) get(group *FilterGroup) *filterResult {
	return ev.byKey[group.key]
}

// release decrements the reference count; dropUnreferenced later
// removes entries that reach zero.
func (ev *filterEvaluator) release(group *FilterGroup) {
	if fr, ok := ev.byKey[group.key]; ok {
		fr.refCount--
	}
}

func (ev *filterEvaluator) dropUnreferenced() {
	for k, fr := range ev.byKey {
		if fr.refCount <= 0 {
			delete(ev.byKey, k)
		}
	}
}

// refreshAll re-evaluates every live group against the tick's modified
// entity set.
func (ev *filterEvaluator) refreshAll(modified []Entity, reg *registry) {
	for _, fr := range ev.byKey {
		if !fr.born {
			fr.result = evaluateFull(fr.group, reg)
			fr.born = true
			continue
		}
		if fr.group.lifecycleOnly() {
			fr.result = refine(modified, fr.group, reg)
			continue
		}
		fresh := refine(modified, fr.group, reg)
		carried := subtractModified(fr.result, modified)
		fr.result = sortedMergeDedup(carried, fresh)
	}
}

// subtractModified keeps entries of prev that are not present in the
// (sorted) modified set: previously-matching entities that nothing
// touched this tick stay matched without re-evaluation.
func subtractModified(prev, modified []Entity) []Entity {
	if len(modified) == 0 {
		return append([]Entity(nil), prev...)
	}
	out := make([]Entity, 0, len(prev))
	for _, e := range prev {
		if !containsSorted(modified, e) {
			out = append(out, e)
		}
	}
	return out
}

func containsSorted(sorted []Entity, e Entity) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= e })
	return i < len(sorted) && sorted[i] == e
}

func sortedMergeDedup(a, b []Entity) []Entity {
	out := make([]Entity, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i, j = i+1, j+1
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// registry is the key-erased view of a State's component containers
// and entity signatures that the evaluator and pack materializer need,
// kept as its own type so filter.go and pack.go do not have to import
// the whole of state.go's surface.
type registry struct {
	containers map[ComponentKey]containerBase
	sig        *signatureSet
}

func (r *registry) container(key ComponentKey) containerBase {
	return r.containers[key]
}

// evaluateFull computes a group's result from scratch using the
// seed-then-refine algorithm, seeding from the smallest plausible set.
func evaluateFull(g *FilterGroup, reg *registry) []Entity {
	seed := seedFor(g, reg)
	return refine(seed, g, reg)
}

func seedFor(g *FilterGroup, reg *registry) []Entity {
	switch {
	case len(g.onRemove) > 0 || len(g.onBreak) > 0:
		affected := append(append([]Component{}, g.onRemove...), flattenTuples(g.onBreak)...)
		return unionView(affected, StageRemoved, reg)
	case len(g.onAdd) > 0 || len(g.onCombine) > 0:
		affected := append(append([]Component{}, g.onAdd...), flattenTuples(g.onCombine)...)
		return unionView(affected, StageAdded, reg)
	case len(g.filters) > 0:
		return smallestView(g.filters, StageAlive|StageAdded, reg)
	default:
		return nil
	}
}

func flattenTuples(ts [][]Component) []Component {
	var out []Component
	for _, t := range ts {
		out = append(out, t...)
	}
	return out
}

// unionView returns every entity in stage in any of components'
// containers: a tuple operator matches through any one member.
func unionView(components []Component, stage Stage, reg *registry) []Entity {
	var out []Entity
	for _, c := range components {
		if cont := reg.container(c.Key()); cont != nil {
			out = append(out, cont.Entities(stage)...)
		}
	}
	return out
}

func smallestView(components []Component, stage Stage, reg *registry) []Entity {
	var best containerBase
	bestLen := -1
	for _, c := range components {
		cont := reg.container(c.Key())
		if cont == nil {
			return nil // required container never registered: nothing can match
		}
		n := cont.Len(stage)
		if bestLen == -1 || n < bestLen {
			bestLen = n
			best = cont
		}
	}
	if best == nil {
		return nil
	}
	return best.Entities(stage)
}

// refine applies the group's set operators (order_by and on_condition
// are deferred to pack resolution, see resolveForPack) to candidates,
// returning a strictly sorted, duplicate-free result.
func refine(candidates []Entity, g *FilterGroup, reg *registry) []Entity {
	cur := append([]Entity(nil), candidates...)

	if len(g.onRemove) > 0 {
		cur = keepAll(cur, g.onRemove, StageRemoved, reg)
	}
	if len(g.onBreak) > 0 {
		cur = keepBreak(cur, g.onBreak, reg)
	}
	if len(g.onAdd) > 0 {
		cur = keepAll(cur, g.onAdd, StageAdded, reg)
	}
	if len(g.onCombine) > 0 {
		cur = keepCombine(cur, g.onCombine, reg)
	}
	if len(g.filters) > 0 {
		cur = keepPresent(cur, g.filters, reg)
	}
	if len(g.except) > 0 {
		cur = dropPresent(cur, g.except, reg)
	}

	sortEntities(cur)
	return dedupSorted(cur)
}

func keepAll(candidates []Entity, components []Component, stage Stage, reg *registry) []Entity {
	out := candidates[:0:0]
	for _, e := range candidates {
		ok := true
		for _, c := range components {
			cont := reg.container(c.Key())
			if cont == nil || !cont.Has(e, stage) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

// keepBreak keeps entities removed from at least one tuple member this
// tick while every other member is either still alive or also removed
// this tick — i.e. the tuple was whole at tick start and is not whole
// now. See DESIGN.md open question 3.
func keepBreak(candidates []Entity, tuples [][]Component, reg *registry) []Entity {
	out := candidates[:0:0]
	for _, e := range candidates {
		matchesAll := true
		for _, tuple := range tuples {
			if !breaksTuple(e, tuple, reg) {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			out = append(out, e)
		}
	}
	return out
}

func breaksTuple(e Entity, tuple []Component, reg *registry) bool {
	anyRemoved := false
	for _, c := range tuple {
		cont := reg.container(c.Key())
		if cont == nil {
			return false
		}
		removed := cont.Has(e, StageRemoved)
		if removed {
			anyRemoved = true
			continue
		}
		if !cont.Has(e, StageAlive|StageAdded) {
			// neither removed nor present: tuple was never whole for
			// this member, so it cannot have "broken" this tick.
			return false
		}
	}
	return anyRemoved
}

// keepCombine keeps entities where at least one tuple member was
// ADDED this tick and every member of the tuple is currently present.
func keepCombine(candidates []Entity, tuples [][]Component, reg *registry) []Entity {
	out := candidates[:0:0]
	for _, e := range candidates {
		matchesAll := true
		for _, tuple := range tuples {
			if !combinesTuple(e, tuple, reg) {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			out = append(out, e)
		}
	}
	return out
}

func combinesTuple(e Entity, tuple []Component, reg *registry) bool {
	anyAdded := false
	for _, c := range tuple {
		cont := reg.container(c.Key())
		if cont == nil || !cont.Has(e, StageAlive|StageAdded) {
			return false
		}
		if cont.Has(e, StageAdded) {
			anyAdded = true
		}
	}
	return anyAdded
}

// keepPresent/dropPresent implement the `filters`/`except` operators
// via the per-entity signature mask fast path.
func keepPresent(candidates []Entity, components []Component, reg *registry) []Entity {
	want := reg.sig.maskFor(components)
	out := candidates[:0:0]
	for _, e := range candidates {
		if reg.sig.of(e).ContainsAll(want) {
			out = append(out, e)
		}
	}
	return out
}

func dropPresent(candidates []Entity, components []Component, reg *registry) []Entity {
	bad := reg.sig.maskFor(components)
	out := candidates[:0:0]
	for _, e := range candidates {
		if reg.sig.of(e).ContainsNone(bad) {
			out = append(out, e)
		}
	}
	return out
}

func dedupSorted(entities []Entity) []Entity {
	if len(entities) == 0 {
		return entities
	}
	out := entities[:1]
	for _, e := range entities[1:] {
		if e != out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}

// resolveForPack applies a group's optional on_condition and order_by
// transformations to its cached base result, producing the entity list
// a dependency pack materializes.
func resolveForPack(state *State, g *FilterGroup, base []Entity) []Entity {
	out := base
	if len(g.onConditions) > 0 {
		filtered := make([]Entity, 0, len(out))
		for _, e := range out {
			ok := true
			for _, pred := range g.onConditions {
				if !pred(state, e) {
					ok = false
					break
				}
			}
			if ok {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	} else {
		out = append([]Entity(nil), out...)
	}
	if g.orderBy != nil {
		sort.SliceStable(out, func(i, j int) bool { return g.orderBy(state, out[i], out[j]) })
	}
	return out
}
