// Package factory builds new sub-table rows from field definitions.
package factory

import (
	"fmt"
	"slices"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
)

// Options tune how a row is built.
type Options struct {
	// IsCreate applies configured defaults even when defaults is non-nil.
	IsCreate bool

	// IsDefaultValue tags the row as materialized from a default-value push
	// (id prefix "default-") instead of a user add ("temp-").
	IsDefaultValue bool

	// IsQueryFill means defaults came from a query fill. Fields it filled
	// are not resolved again asynchronously.
	IsQueryFill bool
}

// Created is a new row and the async fields still to resolve for it.
type Created struct {
	Row   row.Row
	Async []string
}

// Record is an external record picked through a relation field.
type Record struct {
	ID     string
	Values map[string]any
}

// Factory issues client-side rows.
type Factory struct {
	ids row.IDGenerator
}

// New returns a factory drawing ids from gen.
func New(gen row.IDGenerator) *Factory {
	return &Factory{ids: gen}
}

// Create builds a row for every field of set. Each value comes from the
// explicit entry in defaults, else the field's static default when
// opts.IsCreate is set or defaults is nil, else it is left unset. Keys of
// defaults that are not fields are dropped.
//
// set is a snapshot; a later controls update does not affect the build.
func (f *Factory) Create(set field.Set, defaults map[string]any, opts Options, env recalc.Env) Created {
	kind := row.KindTemp
	if opts.IsDefaultValue {
		kind = row.KindDefault
	}
	r := row.New(row.NewID(f.ids, kind), nil)

	useStatic := opts.IsCreate || defaults == nil
	for _, def := range set.All() {
		if v, ok := defaults[def.ID]; ok {
			r.Values[def.ID] = v
			continue
		}
		if !useStatic {
			continue
		}
		if v, ok := recalc.StaticDefault(def); ok {
			r.Values[def.ID] = v
		}
	}

	res := recalc.Initial(r, set, env)
	async := res.Async
	if opts.IsQueryFill {
		async = slices.DeleteFunc(async, func(id string) bool {
			_, filled := defaults[id]
			return filled
		})
	}
	return Created{Row: res.Row, Async: async}
}

// Copy duplicates the user values of src into a new temp row flagged
// IsCopy. Values of fields no longer in set are dropped.
func (f *Factory) Copy(set field.Set, src row.Row) row.Row {
	r := row.New(row.NewID(f.ids, row.KindTemp), set.Filter(src.Values))
	r.IsCopy = true
	return r
}

// FromRecords builds one row per picked record, each linked to its record
// through relationID. Lookups on that relation come back as async work.
func (f *Factory) FromRecords(set field.Set, relationID string, records []Record, env recalc.Env) ([]Created, error) {
	def, ok := set.Get(relationID)
	if !ok {
		return nil, fmt.Errorf("relation field %q: %w", relationID, recalc.ErrUnknownField)
	}
	if def.Type != field.TypeRelation {
		return nil, fmt.Errorf("field %q is %s, not a relation", relationID, def.Type)
	}

	out := make([]Created, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		defaults := set.Filter(rec.Values)
		defaults[relationID] = rec.ID
		out = append(out, f.Create(set, defaults, Options{IsCreate: true}, env))
	}
	return out, nil
}
