package field

import (
	"fmt"
	"log/slog"
)

// Recompute classifies how a field's value follows its inputs.
type Recompute int

const (
	// RecomputeNone marks plain input fields and system fields.
	RecomputeNone Recompute = iota
	// RecomputeSync marks formulas and concatenations evaluated inline.
	RecomputeSync
	// RecomputeAsync marks lookups and source-defaulted fields that need a resolver.
	RecomputeAsync
)

// Set is an immutable, ordered snapshot of a table's field definitions.
//
// A Set is passed by value. Nothing reachable from it is mutated after
// NewSet returns, so a row construction holding a Set never observes a
// concurrent controls update.
type Set struct {
	defs       []Definition
	index      map[string]int
	dependents map[string][]string
	topo       []string
	cyclic     map[string]bool
	warnings   []CycleWarning
}

// NewSet validates defs and precomputes the dependency graph.
//
// Empty or duplicate ids are errors. Unknown types and malformed defsource
// values are logged and degraded (to text, and to no source) so a single
// corrupt definition does not take the table down.
func NewSet(defs ...Definition) (Set, error) {
	s := Set{
		defs:       make([]Definition, 0, len(defs)),
		index:      make(map[string]int, len(defs)),
		dependents: make(map[string][]string),
		cyclic:     make(map[string]bool),
	}

	for _, d := range defs {
		if d.ID == "" {
			return Set{}, fmt.Errorf("field definition %q has empty id", d.Name)
		}
		if _, dup := s.index[d.ID]; dup {
			return Set{}, fmt.Errorf("duplicate field id %q", d.ID)
		}
		if !d.Type.Valid() {
			slog.Warn("unknown field type, treating as text", "field_id", d.ID, "type", d.Type)
			d.Type = TypeText
			d.Config = nil
		}
		if raw := d.Advanced[KeyDefaultSource]; raw != "" {
			if _, err := ParseDefaultSource(raw); err != nil {
				slog.Warn("default source ignored",
					"error", &ConfigParseError{FieldID: d.ID, Key: KeyDefaultSource, Err: err})
				d.Advanced = withoutKey(d.Advanced, KeyDefaultSource)
			}
		}
		s.index[d.ID] = len(s.defs)
		s.defs = append(s.defs, d)
	}

	graph := make(dependencyGraph)
	for _, d := range s.defs {
		if s.kindOf(d) == RecomputeNone {
			continue
		}
		for _, in := range d.Inputs() {
			if _, ok := s.index[in]; !ok {
				continue
			}
			s.dependents[in] = append(s.dependents[in], d.ID)
			graph[in] = append(graph[in], d.ID)
		}
		if graph[d.ID] == nil {
			graph[d.ID] = []string{}
		}
	}

	s.warnings = analyzeCycles(graph)
	for _, w := range s.warnings {
		for _, id := range w.Path {
			s.cyclic[id] = true
		}
		slog.Warn("computed field cycle", "path", w.Path)
	}

	s.topo = s.topoOrder()
	return s, nil
}

// MustSet is NewSet for static definitions known to be valid.
func MustSet(defs ...Definition) Set {
	s, err := NewSet(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

func withoutKey(m map[string]string, key string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func (s Set) kindOf(d Definition) Recompute {
	switch d.Type {
	case TypeFormula, TypeConcat:
		return RecomputeSync
	case TypeLookup:
		return RecomputeAsync
	case TypeSystem:
		return RecomputeNone
	}
	for _, ref := range d.DefaultSource() {
		if ref.FieldID != "" {
			return RecomputeAsync
		}
	}
	return RecomputeNone
}

// topoOrder returns recomputable fields so that inputs precede dependents.
// Ties follow definition order; cyclic fields are left out.
func (s Set) topoOrder() []string {
	indeg := make(map[string]int)
	var nodes []string
	for _, d := range s.defs {
		if s.kindOf(d) == RecomputeNone || s.cyclic[d.ID] {
			continue
		}
		nodes = append(nodes, d.ID)
		indeg[d.ID] = 0
	}
	for _, id := range nodes {
		for _, in := range s.defs[s.index[id]].Inputs() {
			if _, ok := indeg[in]; ok {
				indeg[id]++
			}
		}
	}

	var order []string
	done := make(map[string]bool, len(nodes))
	for len(order) < len(nodes) {
		progressed := false
		for _, id := range nodes {
			if done[id] || indeg[id] > 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			progressed = true
			for _, dep := range s.dependents[id] {
				if _, ok := indeg[dep]; ok {
					indeg[dep]--
				}
			}
		}
		if !progressed {
			break
		}
	}
	return order
}

// Len returns the number of definitions.
func (s Set) Len() int { return len(s.defs) }

// Get returns the definition with the given id.
func (s Set) Get(id string) (Definition, bool) {
	i, ok := s.index[id]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i], true
}

// Has reports whether id is defined.
func (s Set) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// All returns a copy of the definitions in order.
func (s Set) All() []Definition {
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// IDs returns the field ids in order.
func (s Set) IDs() []string {
	out := make([]string, len(s.defs))
	for i, d := range s.defs {
		out[i] = d.ID
	}
	return out
}

// Kind returns how id is recomputed. Fields caught in a cycle are never recomputed.
func (s Set) Kind(id string) Recompute {
	d, ok := s.Get(id)
	if !ok || s.cyclic[id] {
		return RecomputeNone
	}
	return s.kindOf(d)
}

// IsAsync reports whether id must be resolved outside the edit call.
func (s Set) IsAsync(id string) bool { return s.Kind(id) == RecomputeAsync }

// IsComputed reports whether id is derived from other fields.
func (s Set) IsComputed(id string) bool {
	d, ok := s.Get(id)
	return ok && d.Computed()
}

// Dependents returns the fields directly computed from id.
func (s Set) Dependents(id string) []string {
	deps := s.dependents[id]
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if !s.cyclic[d] {
			out = append(out, d)
		}
	}
	return out
}

// TopoOrder returns the recomputable fields in evaluation order.
func (s Set) TopoOrder() []string {
	out := make([]string, len(s.topo))
	copy(out, s.topo)
	return out
}

// Warnings returns the dependency cycles found at construction.
func (s Set) Warnings() []CycleWarning { return s.warnings }

// Filter returns only the entries of values whose key is a defined field.
func (s Set) Filter(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if s.Has(k) {
			out[k] = v
		}
	}
	return out
}

// Replace returns a new Set with d substituted for the definition of the same id.
func (s Set) Replace(d Definition) (Set, error) {
	defs := s.All()
	for i := range defs {
		if defs[i].ID == d.ID {
			defs[i] = d
			return NewSet(defs...)
		}
	}
	return Set{}, fmt.Errorf("unknown field %q", d.ID)
}
