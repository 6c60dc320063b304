// Package field defines sub-table column definitions (controls).
//
// A Definition is a tagged variant: Type selects which Config payload it
// carries. Definitions are grouped into an immutable Set that precomputes the
// dependency graph between computed fields, so the recalculator can find
// every field affected by an edit, including fields whose default value is
// sourced from another column.
//
// The raw advancedSetting bag is kept as JSON strings. Parsing is forgiving:
// a malformed key is reported as a ConfigParseError and falls back to its
// default.
package field
