package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join("testdata", "scenarios", "order_lines.yaml")
	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "order_lines", s.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "..", "schema"), s.Schema)
	assert.Equal(t, "lines", s.Table)
	require.Len(t, s.Records, 1)
	assert.Equal(t, map[string]any{"title": "Bolt", "sku": "B-100"}, s.Records[0].Values)
	require.Len(t, s.Steps, 11)
	assert.Equal(t, Step{Op: OpAdd, As: "a", Values: map[string]any{"name": "bolt", "qty": 2, "price": 3, "product": "p-1"}}, s.Steps[0])
	assert.Equal(t, "", s.Steps[5].Value)
	assert.Equal(t, "VALIDATION", s.Steps[5].Expect)
	assert.True(t, s.Steps[9].Asc)
	assert.Len(t, s.Assertions, 4)
}

func TestLoadScenarioAbsoluteSchema(t *testing.T) {
	abs, err := filepath.Abs(schemaDir)
	require.NoError(t, err)
	path := writeScenario(t, `
name: abs
schema: `+abs+`
table: lines
record: r
steps:
  - op: load
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, abs, s.Schema)
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: load}]\ntypo: 1\n", "failed to parse YAML"},
		{"no name", "schema: s\ntable: t\nrecord: r\nsteps: [{op: load}]\n", "name is required"},
		{"no schema", "name: x\ntable: t\nrecord: r\nsteps: [{op: load}]\n", "schema is required"},
		{"no table", "name: x\nschema: s\nrecord: r\nsteps: [{op: load}]\n", "table is required"},
		{"no record", "name: x\nschema: s\ntable: t\nsteps: [{op: load}]\n", "record is required"},
		{"no steps", "name: x\nschema: s\ntable: t\nrecord: r\n", "steps list is required"},
		{"unknown op", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: fly}]\n", `unknown op "fly"`},
		{"missing op", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{row: a}]\n", "op is required"},
		{"edit without field", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: edit, row: a}]\n", "row and field are required"},
		{"flush without row", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: flush}]\n", "row is required for flush"},
		{"sort without field", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: sort}]\n", "field is required for sort"},
		{"clear without rows", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: clear_and_set}]\n", "rows is required"},
		{"copy without row", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: copy}]\n", "row is required for copy"},
		{"move without row", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: move, index: 1}]\n", "row is required for move"},
		{"clear_error without field", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: clear_error, row: a}]\n", "row and field are required for clear_error"},
		{"add_records without records", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: add_records, field: product}]\n", "field and records are required"},
		{"add_records extra names", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: add_records, field: product, records: [{id: p-1}], names: [a, b]}]\n", "more names than records"},
		{"record without id", "name: x\nschema: s\ntable: t\nrecord: r\nrecords: [{table: p}]\nsteps: [{op: load}]\n", "records[0]"},
		{"unknown assertion", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: load}]\nassertions: [{type: vibes}]\n", "unknown assertion type"},
		{"row_values without expect", "name: x\nschema: s\ntable: t\nrecord: r\nsteps: [{op: load}]\nassertions: [{type: row_values, row: a}]\n", "row and expect are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
