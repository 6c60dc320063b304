package field

import "slices"

// Type is the closed set of column kinds a sub-table can hold.
type Type string

const (
	TypeText         Type = "text"
	TypeNumber       Type = "number"
	TypeSingleSelect Type = "single_select"
	TypeMultiSelect  Type = "multi_select"
	TypeRelation     Type = "relation"
	TypeSubTable     Type = "sub_table"
	TypeFormula      Type = "formula"
	TypeConcat       Type = "concat"
	TypeLookup       Type = "lookup"
	TypeSystem       Type = "system"
)

// ValidTypes lists every accepted Type in declaration order.
var ValidTypes = []Type{
	TypeText,
	TypeNumber,
	TypeSingleSelect,
	TypeMultiSelect,
	TypeRelation,
	TypeSubTable,
	TypeFormula,
	TypeConcat,
	TypeLookup,
	TypeSystem,
}

// Valid reports whether t is one of ValidTypes.
func (t Type) Valid() bool {
	return slices.Contains(ValidTypes, t)
}

// Config is the per-type configuration payload of a Definition.
// Only the variants declared in this file implement it.
type Config interface {
	fieldConfig()
}

// Option is one choice of a select field.
type Option struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Index   int    `json:"index"`
	Deleted bool   `json:"isDeleted,omitempty"`
}

// SelectConfig configures single_select and multi_select fields.
type SelectConfig struct {
	Options []Option
}

func (SelectConfig) fieldConfig() {}

// IndexOf returns the position of key among the options, or -1.
func (c SelectConfig) IndexOf(key string) int {
	for i, o := range c.Options {
		if o.Key == key {
			return i
		}
	}
	return -1
}

// NumberConfig configures number fields.
type NumberConfig struct {
	Precision int
}

func (NumberConfig) fieldConfig() {}

// RelationConfig points a relation field at records of another table.
type RelationConfig struct {
	Table        string
	DisplayField string
}

func (RelationConfig) fieldConfig() {}

// FormulaOp names an arithmetic reduction over operand fields.
type FormulaOp string

const (
	OpAdd FormulaOp = "add"
	OpSub FormulaOp = "sub"
	OpMul FormulaOp = "mul"
	OpDiv FormulaOp = "div"
	OpAvg FormulaOp = "avg"
	OpMin FormulaOp = "min"
	OpMax FormulaOp = "max"
)

// FormulaConfig computes a number from other fields of the same row.
type FormulaConfig struct {
	Op       FormulaOp
	Operands []string
}

func (FormulaConfig) fieldConfig() {}

// ConcatConfig joins the string forms of other fields.
type ConcatConfig struct {
	Sources   []string
	Separator string
}

func (ConcatConfig) fieldConfig() {}

// LookupConfig reads Field from the record referenced by the Relation field.
// Lookups need a round trip and are always resolved asynchronously.
type LookupConfig struct {
	Relation string
	Field    string
}

func (LookupConfig) fieldConfig() {}

// Permission is the fixed-width flag string "<visible><editable><addable>".
type Permission string

const (
	PermissionAll      Permission = "111"
	PermissionNone     Permission = "000"
	PermissionViewOnly Permission = "100"
)

func (p Permission) flag(i int) bool {
	if len(p) <= i {
		return true
	}
	return p[i] == '1'
}

func (p Permission) Visible() bool  { return p.flag(0) }
func (p Permission) Editable() bool { return p.flag(1) }
func (p Permission) Addable() bool  { return p.flag(2) }

// With returns p with the flag at index i forced to on.
// Missing positions are padded with '1'.
func (p Permission) With(i int, on bool) Permission {
	b := []byte(p)
	for len(b) < 3 {
		b = append(b, '1')
	}
	if i < 0 || i >= len(b) {
		return Permission(b)
	}
	if on {
		b[i] = '1'
	} else {
		b[i] = '0'
	}
	return Permission(b)
}

// Definition describes one column (control) of a sub-table.
type Definition struct {
	ID         string
	Name       string
	Type       Type
	Required   bool
	Unique     bool
	Permission Permission
	Default    any
	Config     Config

	// Advanced is the raw advancedSetting bag; values are JSON strings.
	Advanced map[string]string
}

// Computed reports whether the value is derived rather than typed in.
func (d Definition) Computed() bool {
	switch d.Type {
	case TypeFormula, TypeConcat, TypeLookup, TypeSystem:
		return true
	}
	return false
}

// Editable reports whether a user may write the field directly.
func (d Definition) Editable() bool {
	if d.Computed() {
		return false
	}
	if d.Permission == "" {
		return true
	}
	return d.Permission.Visible() && d.Permission.Editable()
}

// Inputs returns the ids of same-row fields the value is computed from.
func (d Definition) Inputs() []string {
	var ids []string
	switch c := d.Config.(type) {
	case FormulaConfig:
		ids = append(ids, c.Operands...)
	case ConcatConfig:
		ids = append(ids, c.Sources...)
	case LookupConfig:
		ids = append(ids, c.Relation)
	}
	for _, ref := range d.DefaultSource() {
		if ref.FieldID != "" {
			ids = append(ids, ref.FieldID)
		}
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	out := ids[:0:0]
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// WithOption returns a copy of a select definition with opt appended.
// Options are keyed; an existing key is left untouched.
func WithOption(d Definition, opt Option) Definition {
	cfg, ok := d.Config.(SelectConfig)
	if !ok {
		return d
	}
	if cfg.IndexOf(opt.Key) >= 0 {
		return d
	}
	opts := make([]Option, len(cfg.Options), len(cfg.Options)+1)
	copy(opts, cfg.Options)
	if opt.Index == 0 {
		opt.Index = len(opts) + 1
	}
	d.Config = SelectConfig{Options: append(opts, opt)}
	return d
}
