package field

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
)

// Keys of the advancedSetting bag understood by this package.
const (
	KeyDefaultSource = "defsource"
	KeySorts         = "sorts"
	KeyWidths        = "widths"
	KeyControlSorts  = "controlssorts"
	KeyAllowAdd      = "allowadd"
	KeyAllowCancel   = "allowcancel"
	KeyAllowEdit     = "allowedit"
	KeyAllowSingle   = "allowsingle"
	KeyAllowExport   = "allowexport"
	KeyBatchFields   = "batchcids"
)

// ConfigParseError reports a malformed advancedSetting value.
// Callers recover by falling back to the key's default.
type ConfigParseError struct {
	FieldID string
	Key     string
	Err     error
}

func (e *ConfigParseError) Error() string {
	if e.FieldID != "" {
		return fmt.Sprintf("field %s: parse %s: %v", e.FieldID, e.Key, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// SourceRef is one entry of a default-value source expression.
// FieldID references another field of the same row; Static is a literal.
type SourceRef struct {
	FieldID string `json:"cid"`
	Static  string `json:"staticValue"`
}

// ParseDefaultSource decodes a defsource value. An empty string yields no refs.
func ParseDefaultSource(raw string) ([]SourceRef, error) {
	if raw == "" {
		return nil, nil
	}
	var refs []SourceRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// DefaultSource returns the parsed defsource refs, or nil when malformed.
func (d Definition) DefaultSource() []SourceRef {
	refs, err := ParseDefaultSource(d.Advanced[KeyDefaultSource])
	if err != nil {
		return nil
	}
	return refs
}

// SortRule orders rows by one field.
type SortRule struct {
	FieldID string `json:"controlId"`
	Asc     bool   `json:"isAsc"`
}

// TableSettings is the parsed advancedSetting of the sub-table itself.
type TableSettings struct {
	Sorts         []SortRule
	Widths        []int
	ControlSorts  []string
	AllowAdd      bool
	AllowCancel   bool
	AllowEdit     bool
	AllowSingle   bool
	AllowExport   bool
	BatchFieldIDs []string
}

// DefaultTableSettings allows every row operation.
func DefaultTableSettings() TableSettings {
	return TableSettings{
		AllowAdd:    true,
		AllowCancel: true,
		AllowEdit:   true,
		AllowSingle: true,
		AllowExport: true,
	}
}

// ParseTableSettings decodes a sub-table advancedSetting bag.
//
// Every key is parsed independently: a malformed key is reported in the
// returned errors and left at its default, so one bad value never blanks the
// whole table.
func ParseTableSettings(adv map[string]string) (TableSettings, []error) {
	s := DefaultTableSettings()
	var errs []error

	decode := func(key string, dst any) {
		raw, ok := adv[key]
		if !ok || raw == "" {
			return
		}
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			errs = append(errs, &ConfigParseError{Key: key, Err: err})
		}
	}
	flag := func(key string, dst *bool) {
		raw, ok := adv[key]
		if !ok || raw == "" {
			return
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, &ConfigParseError{Key: key, Err: err})
			return
		}
		*dst = v
	}

	var sorts []SortRule
	decode(KeySorts, &sorts)
	s.Sorts = sorts

	var widths []int
	decode(KeyWidths, &widths)
	s.Widths = widths

	var order []string
	decode(KeyControlSorts, &order)
	s.ControlSorts = order

	var batch []string
	decode(KeyBatchFields, &batch)
	s.BatchFieldIDs = batch

	flag(KeyAllowAdd, &s.AllowAdd)
	flag(KeyAllowCancel, &s.AllowCancel)
	flag(KeyAllowEdit, &s.AllowEdit)
	flag(KeyAllowSingle, &s.AllowSingle)
	flag(KeyAllowExport, &s.AllowExport)

	// An explicit batch picker without allowsingle hides add-by-line.
	if _, ok := adv[KeyAllowSingle]; !ok && len(s.BatchFieldIDs) > 0 {
		s.AllowSingle = false
	}

	for _, err := range errs {
		slog.Warn("table setting ignored", "error", err)
	}
	return s, errs
}

// ColumnWidths maps visible field ids to their configured widths by position.
func (s TableSettings) ColumnWidths(columns []string) map[string]int {
	out := make(map[string]int, len(columns))
	for i, id := range columns {
		if i < len(s.Widths) {
			out[id] = s.Widths[i]
		}
	}
	return out
}
