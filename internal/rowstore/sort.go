package rowstore

import (
	"cmp"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// ByField returns a comparator ordering rows by the value of def.
//
// Text is compared with the locale's collation, numbers numerically and
// select values by option position. Empty values sort last in both
// directions.
func ByField(def field.Definition, asc bool, locale language.Tag) func(a, b row.Row) int {
	key := keyFunc(def, locale)
	return func(a, b row.Row) int {
		av, bv := a.Values[def.ID], b.Values[def.ID]
		ae, be := row.IsEmpty(av), row.IsEmpty(bv)
		switch {
		case ae && be:
			return 0
		case ae:
			return 1
		case be:
			return -1
		}
		c := key(av, bv)
		if !asc {
			c = -c
		}
		return c
	}
}

// ByAddedAt orders rows by insertion counter.
func ByAddedAt(a, b row.Row) int { return cmp.Compare(a.AddedAt, b.AddedAt) }

func keyFunc(def field.Definition, locale language.Tag) func(a, b any) int {
	switch def.Type {
	case field.TypeNumber, field.TypeFormula:
		return compareNumbers
	case field.TypeSingleSelect, field.TypeMultiSelect:
		if cfg, ok := def.Config.(field.SelectConfig); ok {
			return func(a, b any) int {
				return cmp.Compare(optionRank(cfg, a), optionRank(cfg, b))
			}
		}
	}
	// A Collator carries scratch buffers and is not safe for concurrent use;
	// each comparator gets its own.
	col := collate.New(locale, collate.Numeric)
	return func(a, b any) int {
		return col.CompareString(row.Text(a), row.Text(b))
	}
}

func compareNumbers(a, b any) int {
	af, aok := row.Number(a)
	bf, bok := row.Number(b)
	switch {
	case aok && bok:
		return cmp.Compare(af, bf)
	case aok:
		return -1
	case bok:
		return 1
	}
	return cmp.Compare(row.Text(a), row.Text(b))
}

// optionRank is the lowest option position among the value's keys.
// Unknown keys rank after every option.
func optionRank(cfg field.SelectConfig, v any) int {
	best := len(cfg.Options)
	for _, k := range row.Keys(v) {
		if i := cfg.IndexOf(k); i >= 0 && i < best {
			best = i
		}
	}
	return best
}

// SortByField stable-sorts the store by def.
func (s *Store) SortByField(def field.Definition, asc bool, locale language.Tag) {
	s.Reorder(ByField(def, asc, locale))
}

// SortRules applies a table's configured sort rules, first rule most
// significant. Rules naming unknown fields are skipped.
func (s *Store) SortRules(set field.Set, rules []field.SortRule, locale language.Tag) {
	var cmps []func(a, b row.Row) int
	for _, r := range rules {
		def, ok := set.Get(r.FieldID)
		if !ok {
			continue
		}
		cmps = append(cmps, ByField(def, r.Asc, locale))
	}
	if len(cmps) == 0 {
		return
	}
	s.Reorder(func(a, b row.Row) int {
		for _, c := range cmps {
			if r := c(a, b); r != 0 {
				return r
			}
		}
		return 0
	})
}
