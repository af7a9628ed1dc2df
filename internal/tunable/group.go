package tunable

// CovariantGroup is a named set of tunables that share a re-configuration
// cost (spec.md C2).
type CovariantGroup struct {
	Name  string
	Cost  int
	Order []string // insertion order of tunable names, for stable iteration
	byName map[string]*Tunable
	dirty bool
}

// NewCovariantGroup constructs a group. The dirty flag starts true: the
// initial assignment counts as an update (spec.md §3 "Covariant Group").
func NewCovariantGroup(name string, cost int, tunables ...*Tunable) *CovariantGroup {
	g := &CovariantGroup{
		Name:   name,
		Cost:   cost,
		byName: make(map[string]*Tunable, len(tunables)),
		dirty:  true,
	}
	for _, t := range tunables {
		g.Order = append(g.Order, t.Name)
		g.byName[t.Name] = t
	}
	return g
}

// Tunables returns the group's tunables in insertion order.
func (g *CovariantGroup) Tunables() []*Tunable {
	out := make([]*Tunable, 0, len(g.Order))
	for _, n := range g.Order {
		out = append(out, g.byName[n])
	}
	return out
}

// Get returns the tunable with the given name, if present.
func (g *CovariantGroup) Get(name string) (*Tunable, bool) {
	t, ok := g.byName[name]
	return t, ok
}

// Dirty reports whether the group has been modified since the last Reset.
func (g *CovariantGroup) Dirty() bool { return g.dirty }

// Reset clears the dirty flag.
func (g *CovariantGroup) Reset() { g.dirty = false }

// EffectiveCost returns Cost if the group is dirty, else 0 (spec.md §3
// "Covariant Group").
func (g *CovariantGroup) EffectiveCost() int {
	if g.dirty {
		return g.Cost
	}
	return 0
}

// Assign sets the named tunable's value, marking the group dirty if the
// value actually changed.
func (g *CovariantGroup) Assign(name string, v Value) error {
	t, ok := g.byName[name]
	if !ok {
		return &unknownTunableError{group: g.Name, tunable: name}
	}
	changed, err := t.Assign(v)
	if err != nil {
		return err
	}
	if changed {
		g.dirty = true
	}
	return nil
}

// RestoreDefaults resets every tunable in the group to its default value and
// clears the dirty flag.
func (g *CovariantGroup) RestoreDefaults() {
	for _, t := range g.byName {
		t.RestoreDefault()
	}
	g.dirty = false
}

// IsDefaults reports whether every tunable in the group is at its default.
func (g *CovariantGroup) IsDefaults() bool {
	for _, t := range g.byName {
		if !t.Current.Equal(t.Default) {
			return false
		}
	}
	return true
}

// clone returns a deep copy of the group, including independent Tunable
// instances (used by Groups.Clone / Optimizer.suggest).
func (g *CovariantGroup) clone() *CovariantGroup {
	c := &CovariantGroup{
		Name:   g.Name,
		Cost:   g.Cost,
		Order:  append([]string(nil), g.Order...),
		byName: make(map[string]*Tunable, len(g.byName)),
		dirty:  g.dirty,
	}
	for n, t := range g.byName {
		c.byName[n] = t.Clone()
	}
	return c
}

type unknownTunableError struct {
	group, tunable string
}

func (e *unknownTunableError) Error() string {
	return "tunable " + e.tunable + " not found in group " + e.group
}
