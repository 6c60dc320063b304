// Package schema compiles sub-table definitions written in CUE.
//
// A table is declared under the top-level "table" struct:
//
//	table: lines: {
//		name:     "Order lines"
//		max_rows: 50
//		settings: allowexport: "false"
//		fields: {
//			qty:      {type: "number", default: 1}
//			price:    {type: "number"}
//			subtotal: {type: "formula", formula: {op: "mul", operands: ["qty", "price"]}}
//		}
//	}
//
// Fields keep their declaration order.
package schema

import (
	"encoding/json"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/subsheet/internal/field"
)

// Table is a compiled sub-table definition.
type Table struct {
	ID       string
	Name     string
	Fields   field.Set
	Settings field.TableSettings
	MaxRows  int

	// Warnings are recoverable problems: ignored settings and field cycles.
	Warnings []error
}

// CompileTable parses a CUE value into a Table. The table id is the last
// label of the value's path.
func CompileTable(v cue.Value) (*Table, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Table{}
	if sel := v.Path().Selectors(); len(sel) > 0 {
		t.ID = sel[len(sel)-1].String()
	}

	var err error
	if t.Name, err = optString(v, "name"); err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = t.ID
	}

	if mv := v.LookupPath(cue.ParsePath("max_rows")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n < 1 {
			return nil, &CompileError{Field: "max_rows", Message: "must be at least 1", Pos: mv.Pos()}
		}
		t.MaxRows = int(n)
	}

	adv, err := stringMap(v, "settings")
	if err != nil {
		return nil, err
	}
	settings, errs := field.ParseTableSettings(adv)
	t.Settings = settings
	t.Warnings = append(t.Warnings, errs...)

	defs, err := parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: v.Pos()}
	}

	show, err := stringList(v, "show")
	if err != nil {
		return nil, err
	}
	order, err := stringList(v, "order")
	if err != nil {
		return nil, err
	}
	if len(show) > 0 || len(order) > 0 {
		if len(show) == 0 {
			show = order
		}
		defs = field.Arrange(defs, show, order, nil)
	}

	set, err := field.NewSet(defs...)
	if err != nil {
		return nil, &CompileError{Field: "fields", Message: err.Error(), Pos: v.Pos()}
	}
	for _, w := range set.Warnings() {
		t.Warnings = append(t.Warnings, fmt.Errorf("computed field cycle: %v", w.Path))
	}
	for _, rule := range settings.Sorts {
		if !set.Has(rule.FieldID) {
			t.Warnings = append(t.Warnings, fmt.Errorf("sort rule names unknown field %q", rule.FieldID))
		}
	}
	t.Fields = set
	return t, nil
}

// parseFields extracts field definitions in declaration order and checks
// that every field reference resolves.
func parseFields(v cue.Value) ([]field.Definition, error) {
	fv := v.LookupPath(cue.ParsePath("fields"))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var (
		defs []field.Definition
		pos  = map[string]token.Pos{}
	)
	for iter.Next() {
		d, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
		pos[d.ID] = iter.Value().Pos()
	}

	types := make(map[string]field.Type, len(defs))
	for _, d := range defs {
		types[d.ID] = d.Type
	}
	for _, d := range defs {
		for _, ref := range d.Inputs() {
			if _, ok := types[ref]; !ok {
				return nil, &CompileError{
					Field:   "fields." + d.ID,
					Message: fmt.Sprintf("references unknown field %q", ref),
					Pos:     pos[d.ID],
				}
			}
		}
		if lc, ok := d.Config.(field.LookupConfig); ok && types[lc.Relation] != field.TypeRelation {
			return nil, &CompileError{
				Field:   "fields." + d.ID,
				Message: fmt.Sprintf("lookup relation %q is not a relation field", lc.Relation),
				Pos:     pos[d.ID],
			}
		}
	}
	return defs, nil
}

func parseField(id string, v cue.Value) (field.Definition, error) {
	d := field.Definition{ID: id}
	path := "fields." + id

	typ, err := optString(v, "type")
	if err != nil {
		return d, err
	}
	d.Type = field.Type(typ)
	if !d.Type.Valid() {
		return d, &CompileError{Field: path + ".type", Message: fmt.Sprintf("unknown field type %q", typ), Pos: v.Pos()}
	}

	if d.Name, err = optString(v, "name"); err != nil {
		return d, err
	}
	if d.Required, err = optBool(v, "required"); err != nil {
		return d, err
	}
	if d.Unique, err = optBool(v, "unique"); err != nil {
		return d, err
	}
	perm, err := optString(v, "permission")
	if err != nil {
		return d, err
	}
	d.Permission = field.Permission(perm)

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		var def any
		if err := dv.Decode(&def); err != nil {
			return d, formatCUEError(err)
		}
		d.Default = def
	}

	if d.Advanced, err = stringMap(v, "advanced"); err != nil {
		return d, err
	}
	if err := parseDefaultSource(v, &d); err != nil {
		return d, err
	}

	d.Config, err = parseConfig(path, d.Type, v)
	return d, err
}

// parseDefaultSource turns defsource: [{cid: "x"}, {static: "y"}] into the
// JSON advanced setting the field package reads.
func parseDefaultSource(v cue.Value, d *field.Definition) error {
	sv := v.LookupPath(cue.ParsePath("defsource"))
	if !sv.Exists() {
		return nil
	}
	list, err := sv.List()
	if err != nil {
		return formatCUEError(err)
	}
	var refs []field.SourceRef
	for list.Next() {
		cid, err := optString(list.Value(), "cid")
		if err != nil {
			return err
		}
		static, err := optString(list.Value(), "static")
		if err != nil {
			return err
		}
		if cid == "" && static == "" {
			return &CompileError{Field: "fields." + d.ID + ".defsource", Message: "entry needs cid or static", Pos: list.Value().Pos()}
		}
		refs = append(refs, field.SourceRef{FieldID: cid, Static: static})
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("field %s: encode defsource: %w", d.ID, err)
	}
	if d.Advanced == nil {
		d.Advanced = map[string]string{}
	}
	d.Advanced[field.KeyDefaultSource] = string(raw)
	return nil
}

func parseConfig(path string, t field.Type, v cue.Value) (field.Config, error) {
	switch t {
	case field.TypeSingleSelect, field.TypeMultiSelect:
		ov := v.LookupPath(cue.ParsePath("options"))
		if !ov.Exists() {
			return field.SelectConfig{}, nil
		}
		list, err := ov.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var cfg field.SelectConfig
		for i := 1; list.Next(); i++ {
			key, err := optString(list.Value(), "key")
			if err != nil {
				return nil, err
			}
			if key == "" {
				return nil, &CompileError{Field: path + ".options", Message: "option key is required", Pos: list.Value().Pos()}
			}
			if cfg.IndexOf(key) >= 0 {
				return nil, &CompileError{Field: path + ".options", Message: fmt.Sprintf("duplicate option key %q", key), Pos: list.Value().Pos()}
			}
			label, err := optString(list.Value(), "value")
			if err != nil {
				return nil, err
			}
			cfg.Options = append(cfg.Options, field.Option{Key: key, Value: label, Index: i})
		}
		return cfg, nil

	case field.TypeNumber:
		pv := v.LookupPath(cue.ParsePath("precision"))
		if !pv.Exists() {
			return nil, nil
		}
		n, err := pv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return field.NumberConfig{Precision: int(n)}, nil

	case field.TypeRelation:
		table, err := requiredString(v, path, "relation.table")
		if err != nil {
			return nil, err
		}
		display, err := optString(v, "relation.display")
		if err != nil {
			return nil, err
		}
		return field.RelationConfig{Table: table, DisplayField: display}, nil

	case field.TypeLookup:
		rel, err := requiredString(v, path, "lookup.relation")
		if err != nil {
			return nil, err
		}
		f, err := requiredString(v, path, "lookup.field")
		if err != nil {
			return nil, err
		}
		return field.LookupConfig{Relation: rel, Field: f}, nil

	case field.TypeFormula:
		op, err := requiredString(v, path, "formula.op")
		if err != nil {
			return nil, err
		}
		if !slices.Contains(formulaOps, field.FormulaOp(op)) {
			return nil, &CompileError{Field: path + ".formula.op", Message: fmt.Sprintf("unknown formula op %q", op), Pos: v.Pos()}
		}
		operands, err := stringList(v, "formula.operands")
		if err != nil {
			return nil, err
		}
		if len(operands) == 0 {
			return nil, &CompileError{Field: path + ".formula.operands", Message: "at least one operand is required", Pos: v.Pos()}
		}
		return field.FormulaConfig{Op: field.FormulaOp(op), Operands: operands}, nil

	case field.TypeConcat:
		sources, err := stringList(v, "concat.sources")
		if err != nil {
			return nil, err
		}
		sep, err := optString(v, "concat.separator")
		if err != nil {
			return nil, err
		}
		return field.ConcatConfig{Sources: sources, Separator: sep}, nil
	}
	return nil, nil
}

var formulaOps = []field.FormulaOp{
	field.OpAdd, field.OpSub, field.OpMul, field.OpDiv, field.OpAvg, field.OpMin, field.OpMax,
}

func optString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredString(v cue.Value, fieldPath, path string) (string, error) {
	s, err := optString(v, path)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", &CompileError{Field: fieldPath + "." + path, Message: "is required", Pos: v.Pos()}
	}
	return s, nil
}

func optBool(v cue.Value, path string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(path))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(path))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMap(v cue.Value, path string) (map[string]string, error) {
	mv := v.LookupPath(cue.ParsePath(path))
	if !mv.Exists() {
		return nil, nil
	}
	iter, err := mv.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := map[string]string{}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out[iter.Label()] = s
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
