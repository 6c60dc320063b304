// Package recalc recomputes derived fields of a row after an edit.
//
// Synchronous fields (formulas, concatenations) are evaluated inline in
// dependency order. Asynchronous fields (lookups, fields defaulted from
// another column) are only reported: the caller resolves them through a
// Resolver and feeds each result back with Apply.
package recalc

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/language"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// ErrUnknownField is returned when an edit names a field outside the set.
var ErrUnknownField = errors.New("unknown field")

// Env is the caller context a computation may depend on. It is passed
// explicitly on every call; nothing here reads process-wide state.
type Env struct {
	Account string
	Locale  language.Tag
	Flags   map[string]bool
}

// Flag reports whether a feature flag is on.
func (e Env) Flag(name string) bool { return e.Flags[name] }

// Result is the outcome of a recompute.
type Result struct {
	// Row is the new snapshot with sync fields already evaluated.
	Row row.Row

	// Updated lists the edited field and every field it affects, in
	// evaluation order.
	Updated []string

	// Async lists fields that must be resolved outside the call.
	Async []string
}

// Recompute sets editedID to value and re-derives every field that depends
// on it, directly or through other sync fields. Async dependents, including
// fields whose default source names editedID, are returned rather than
// computed. The input row is not modified.
func Recompute(r row.Row, editedID string, value any, set field.Set, env Env) (Result, error) {
	if !set.Has(editedID) {
		return Result{Row: r.Clone()}, fmt.Errorf("recompute %q: %w", editedID, ErrUnknownField)
	}
	return propagate(r, editedID, value, set, env), nil
}

// Apply merges a resolved async value into r and recomputes what depends on
// it. A field no longer in the set leaves the row unchanged: results may
// arrive after the controls were replaced.
func Apply(r row.Row, fieldID string, value any, set field.Set, env Env) Result {
	if !set.Has(fieldID) {
		return Result{Row: r.Clone()}
	}
	return propagate(r, fieldID, value, set, env)
}

func propagate(r row.Row, fieldID string, value any, set field.Set, env Env) Result {
	out := r.Clone()
	out.Values[fieldID] = value

	syncIDs, asyncIDs := affected(set, fieldID)
	res := Result{Updated: []string{fieldID}}

	for _, id := range set.TopoOrder() {
		switch {
		case syncIDs[id]:
			def, _ := set.Get(id)
			out.Values[id] = Evaluate(def, out.Values, env)
			res.Updated = append(res.Updated, id)
		case asyncIDs[id]:
			res.Async = append(res.Async, id)
			res.Updated = append(res.Updated, id)
		}
	}

	out.MarkUpdated(res.Updated...)
	res.Row = out
	return res
}

// affected walks the dependency graph from id. Sync fields are traversed
// transitively; async fields are collected but not traversed, because their
// own dependents only change once the async value lands.
func affected(set field.Set, id string) (syncIDs, asyncIDs map[string]bool) {
	syncIDs = make(map[string]bool)
	asyncIDs = make(map[string]bool)

	queue := []string{id}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range set.Dependents(cur) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			switch set.Kind(dep) {
			case field.RecomputeSync:
				syncIDs[dep] = true
				queue = append(queue, dep)
			case field.RecomputeAsync:
				asyncIDs[dep] = true
			}
		}
	}
	return syncIDs, asyncIDs
}

// Initial evaluates a freshly built row: every sync field is computed and
// async fields whose inputs are present are reported. Source-defaulted
// fields that already hold a value are left alone.
func Initial(r row.Row, set field.Set, env Env) Result {
	out := r.Clone()
	var res Result

	for _, id := range set.TopoOrder() {
		def, _ := set.Get(id)
		switch set.Kind(id) {
		case field.RecomputeSync:
			out.Values[id] = Evaluate(def, out.Values, env)
		case field.RecomputeAsync:
			if def.Type != field.TypeLookup && !row.IsEmpty(out.Values[id]) {
				continue
			}
			if !hasInput(def, out.Values) {
				continue
			}
			res.Async = append(res.Async, id)
		}
	}
	res.Row = out
	return res
}

func hasInput(def field.Definition, values map[string]any) bool {
	return slices.ContainsFunc(def.Inputs(), func(in string) bool {
		return !row.IsEmpty(values[in])
	})
}

// StaticDefault returns the value a new row gets for def without any
// lookup: the configured default, else the first static default source.
func StaticDefault(def field.Definition) (any, bool) {
	if def.Default != nil {
		return def.Default, true
	}
	for _, ref := range def.DefaultSource() {
		if ref.FieldID == "" && ref.Static != "" {
			return ref.Static, true
		}
	}
	return nil, false
}
