package tunable

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/rand"

	"github.com/benchtune/benchtune/internal/errkind"
)

// Groups is the full tunable space (spec.md C3): a collection of covariant
// groups with a global invariant that every tunable name is unique across
// the whole collection, plus a secondary index for direct by-name lookup
// regardless of owning group.
type Groups struct {
	order      []string
	byGroup    map[string]*CovariantGroup
	byTunable  map[string]*CovariantGroup
}

// NewGroups builds a Groups from covariant groups, rejecting duplicate
// tunable names across groups.
func NewGroups(groups ...*CovariantGroup) (*Groups, error) {
	g := &Groups{
		byGroup:   make(map[string]*CovariantGroup, len(groups)),
		byTunable: make(map[string]*CovariantGroup),
	}
	for _, cg := range groups {
		if err := g.addGroup(cg); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Groups) addGroup(cg *CovariantGroup) error {
	if _, exists := g.byGroup[cg.Name]; exists {
		return fmt.Errorf("%w: duplicate covariant group name %q", errkind.Invalid, cg.Name)
	}
	for _, name := range cg.Order {
		if owner, exists := g.byTunable[name]; exists {
			return fmt.Errorf("%w: tunable %q appears in both group %q and group %q",
				errkind.Invalid, name, owner.Name, cg.Name)
		}
	}
	g.order = append(g.order, cg.Name)
	g.byGroup[cg.Name] = cg
	for _, name := range cg.Order {
		g.byTunable[name] = cg
	}
	return nil
}

// GroupNames returns covariant group names in insertion order.
func (g *Groups) GroupNames() []string {
	return append([]string(nil), g.order...)
}

// Group returns the named covariant group.
func (g *Groups) Group(name string) (*CovariantGroup, bool) {
	cg, ok := g.byGroup[name]
	return cg, ok
}

// Lookup finds the tunable with the given name regardless of which group
// owns it.
func (g *Groups) Lookup(name string) (*Tunable, bool) {
	cg, ok := g.byTunable[name]
	if !ok {
		return nil, false
	}
	return cg.Get(name)
}

// TunableNames returns the names of every tunable across every group, sorted.
func (g *Groups) TunableNames() []string {
	names := make([]string, 0, len(g.byTunable))
	for n := range g.byTunable {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Assign writes each named value through to its owning tunable, marking the
// owning group dirty on change. Unknown names are a validation error; the
// whole assignment either fully applies or fully fails (no partial writes
// observed by callers that check the error).
func (g *Groups) Assign(values map[string]Value) error {
	for name, v := range values {
		cg, ok := g.byTunable[name]
		if !ok {
			return fmt.Errorf("%w: unknown tunable %q", errkind.Invalid, name)
		}
		t, _ := cg.Get(name)
		if _, err := t.Clone().Assign(v); err != nil {
			return err
		}
	}
	for name, v := range values {
		cg := g.byTunable[name]
		if err := cg.Assign(name, v); err != nil {
			return err
		}
	}
	return nil
}

// RestoreDefaults resets every tunable in every group to its default.
func (g *Groups) RestoreDefaults() {
	for _, cg := range g.byGroup {
		cg.RestoreDefaults()
	}
}

// IsDefaults reports whether every group is at its defaults.
func (g *Groups) IsDefaults() bool {
	for _, cg := range g.byGroup {
		if !cg.IsDefaults() {
			return false
		}
	}
	return true
}

// Subgroup returns a new Groups referencing the same underlying Tunable
// pointers as the named groups, so that assigning through the subgroup view
// is visible on the parent and vice versa (spec.md §3 "Tunable Groups":
// "a subgroup view shares tunable references with its parent").
func (g *Groups) Subgroup(names ...string) (*Groups, error) {
	out := &Groups{
		byGroup:   make(map[string]*CovariantGroup, len(names)),
		byTunable: make(map[string]*CovariantGroup),
	}
	for _, name := range names {
		cg, ok := g.byGroup[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown covariant group %q", errkind.Invalid, name)
		}
		out.order = append(out.order, name)
		out.byGroup[name] = cg
		for _, tn := range cg.Order {
			out.byTunable[tn] = cg
		}
	}
	return out, nil
}

// Merge combines other into g in place. Groups present in both must be the
// identical definition (same tunables, same defaults); they may differ only
// in current value, in which case other's current values win. Disjoint
// groups from other are appended (spec.md §9 resolves the merge-overlap
// Open Question this way: same-definition overlap is allowed and expected
// when composing a shared "defaults" set with an experiment-specific
// override set; conflicting definitions are rejected).
func (g *Groups) Merge(other *Groups) error {
	for _, name := range other.order {
		src := other.byGroup[name]
		dst, exists := g.byGroup[name]
		if !exists {
			if err := g.addGroup(src.clone()); err != nil {
				return err
			}
			continue
		}
		if err := dst.mergeFrom(src); err != nil {
			return fmt.Errorf("merging group %q: %w", name, err)
		}
	}
	return nil
}

func (g *CovariantGroup) mergeFrom(src *CovariantGroup) error {
	if len(src.Order) != len(g.Order) {
		return fmt.Errorf("%w: group %q has %d tunables, incoming has %d",
			errkind.Invalid, g.Name, len(g.Order), len(src.Order))
	}
	for _, name := range src.Order {
		dstT, ok := g.byName[name]
		if !ok {
			return fmt.Errorf("%w: group %q missing tunable %q present in incoming definition",
				errkind.Invalid, g.Name, name)
		}
		srcT, _ := src.Get(name)
		if !dstT.Default.Equal(srcT.Default) || dstT.Type != srcT.Type {
			return fmt.Errorf("%w: tunable %q definition differs between merged groups",
				errkind.Invalid, name)
		}
		if changed, err := dstT.Assign(srcT.Current); err != nil {
			return err
		} else if changed {
			g.dirty = true
		}
	}
	return nil
}

// Clone returns a deep copy with independent Tunable instances, suitable for
// an optimizer to mutate while suggesting a candidate configuration.
func (g *Groups) Clone() *Groups {
	out := &Groups{
		order:     append([]string(nil), g.order...),
		byGroup:   make(map[string]*CovariantGroup, len(g.byGroup)),
		byTunable: make(map[string]*CovariantGroup, len(g.byTunable)),
	}
	for name, cg := range g.byGroup {
		clone := cg.clone()
		out.byGroup[name] = clone
		for _, tn := range clone.Order {
			out.byTunable[tn] = clone
		}
	}
	return out
}

// Sample draws a fresh random value for every tunable in every group and
// assigns it, marking every group dirty. Used by random search and as the
// cold-start path for guided optimizers.
func (g *Groups) Sample(rng *rand.Rand) {
	for _, cg := range g.byGroup {
		for _, t := range cg.Tunables() {
			if _, err := t.Assign(t.Sample(rng)); err == nil {
				cg.dirty = true
			}
		}
	}
}

// CanonicalString renders the current assignment as a stable, sorted
// "group.tunable=value" listing, used as the input to the content hash that
// deduplicates stored configurations (spec.md §4.2 "configurations are
// deduplicated by content hash").
func (g *Groups) CanonicalString() string {
	names := g.TunableNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		cg := g.byTunable[name]
		t, _ := cg.Get(name)
		parts = append(parts, fmt.Sprintf("%s.%s=%s", cg.Name, name, t.Current.String()))
	}
	return strings.Join(parts, ";")
}

// Values returns the current assignment as a flat map, the external form
// used by storage and the optimizer/environment boundary.
func (g *Groups) Values() map[string]Value {
	out := make(map[string]Value, len(g.byTunable))
	for name, cg := range g.byTunable {
		t, _ := cg.Get(name)
		out[name] = t.Current
	}
	return out
}
