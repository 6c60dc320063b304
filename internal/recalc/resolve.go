package recalc

import (
	"context"
	"fmt"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// Request asks for the value of one async field of a row.
type Request struct {
	Row    row.Row
	Field  field.Definition
	Fields field.Set
	Env    Env
}

// Resolver computes async field values. Implementations may block on I/O
// and must honor ctx.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req Request) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, req Request) (any, error) { return f(ctx, req) }

// RecordLookup fetches a related record by table and id. A missing record
// is reported as a nil map and a nil error.
type RecordLookup interface {
	FetchRecord(ctx context.Context, table, id string) (map[string]any, error)
}

// SourceResolver resolves lookups through a RecordLookup and
// source-defaulted fields from the row itself.
type SourceResolver struct {
	Records RecordLookup
}

var _ Resolver = (*SourceResolver)(nil)

// Resolve implements Resolver.
func (s *SourceResolver) Resolve(ctx context.Context, req Request) (any, error) {
	if cfg, ok := req.Field.Config.(field.LookupConfig); ok {
		return s.lookup(ctx, req, cfg)
	}
	return fromSource(req.Field, req.Row), nil
}

// fromSource takes the first default source that yields a value: a
// non-empty field of the row, or a static value.
func fromSource(def field.Definition, r row.Row) any {
	for _, ref := range def.DefaultSource() {
		if ref.FieldID != "" {
			if v := r.Values[ref.FieldID]; !row.IsEmpty(v) {
				return v
			}
			continue
		}
		if ref.Static != "" {
			return ref.Static
		}
	}
	return nil
}

func (s *SourceResolver) lookup(ctx context.Context, req Request, cfg field.LookupConfig) (any, error) {
	keys := row.Keys(req.Row.Values[cfg.Relation])
	if len(keys) == 0 {
		return nil, nil
	}
	rel, ok := req.Fields.Get(cfg.Relation)
	if !ok {
		return nil, fmt.Errorf("lookup %q: relation field %q: %w", req.Field.ID, cfg.Relation, ErrUnknownField)
	}
	table := rel.ID
	if rc, ok := rel.Config.(field.RelationConfig); ok && rc.Table != "" {
		table = rc.Table
	}
	if s.Records == nil {
		return nil, fmt.Errorf("lookup %q: no record source configured", req.Field.ID)
	}

	rec, err := s.Records.FetchRecord(ctx, table, keys[0])
	if err != nil {
		return nil, fmt.Errorf("lookup %q in %s/%s: %w", req.Field.ID, table, keys[0], err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec[cfg.Field], nil
}
