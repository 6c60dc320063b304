package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schemaDir = filepath.Join("testdata", "schema")

func TestRunWithGolden_OrderLines(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "order_lines.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_PickedLines(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "picked_lines.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Cells, "clear_error dropped the rejected name")
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "order_lines.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRunUnexpectedOutcomeFails(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "unexpected",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAdd, As: "a"},
			{Op: OpFlush, Row: "a"},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "outcome VALIDATION, want ok")
	assert.Equal(t, []CellError{{Row: "a", Field: "name", Code: "VALIDATION"}}, result.Cells)
}

func TestRunClearAndSetAndLoad(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "clear_and_load",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAdd, As: "kept", Values: map[string]any{"name": "kept", "price": 2}},
			{Op: OpFlush, Row: "kept"},
			{Op: OpClearAndSet, Default: true, Rows: []map[string]any{
				{"name": "x", "qty": 2, "price": 2},
				{"name": "y"},
			}},
			{Op: OpLoad},
		},
		Assertions: []Assertion{
			{Type: AssertRowCount, Count: 1},
			{Type: AssertRowValues, Row: "kept", Expect: map[string]any{"name": "kept", "total": 2, "copy": 2}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "ok", result.Trace[2].Outcome)
}

func TestRunClearAndSetRows(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "clear_and_set",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAdd, Values: map[string]any{"name": "gone"}},
			{Op: OpClearAndSet, Default: true, Rows: []map[string]any{
				{"name": "x", "qty": 2, "price": 2},
				{"name": "y"},
			}},
		},
	})
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Rows, 2)
	for _, r := range result.Rows {
		assert.True(t, strings.HasPrefix(r.ID, "default-"), r.ID)
	}
	assert.Equal(t, 4.0, result.Rows[0].Values["total"])
}

func TestRunNoopSteps(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "noop",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpEdit, Row: "ghost", Field: "qty", Value: 1},
			{Op: OpDelete, Row: "ghost"},
			{Op: OpFlush, Row: "ghost"},
			{Op: OpCopy, Row: "ghost"},
			{Op: OpMove, Row: "ghost", Index: 0},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	for _, ev := range result.Trace {
		assert.Equal(t, "noop", ev.Outcome, ev.Op)
	}
}

func TestRunMoveToSamePlaceIsNoop(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "move",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAdd, As: "a", Values: map[string]any{"name": "a"}},
			{Op: OpAdd, As: "b", Values: map[string]any{"name": "b"}},
			{Op: OpMove, Row: "a", Index: 0},
			{Op: OpMove, Row: "a", Index: 5},
		},
		Assertions: []Assertion{
			{Type: AssertRowOrder, Rows: []string{"b", "a"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "noop", result.Trace[2].Outcome)
	assert.Equal(t, "ok", result.Trace[3].Outcome, "index is clamped to the last row")
}

func TestRunAddRecordsUnknownRelation(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "bad_relation",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAddRecords, Field: "name", Picks: []RecordPick{{ID: "p-1"}}, Expect: "UNKNOWN_FIELD"},
		},
		Assertions: []Assertion{{Type: AssertRowCount, Count: 0}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunReadOnlyEdit(t *testing.T) {
	result, err := Run(&Scenario{
		Name:   "read_only",
		Schema: schemaDir,
		Table:  "lines",
		Record: "r",
		Steps: []Step{
			{Op: OpAdd, As: "a", Values: map[string]any{"name": "a"}},
			{Op: OpEdit, Row: "a", Field: "total", Value: 9, Expect: "READ_ONLY"},
			{Op: OpEdit, Row: "a", Field: "nope", Value: 9, Expect: "UNKNOWN_FIELD"},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunSetupErrors(t *testing.T) {
	_, err := Run(&Scenario{Name: "x", Schema: filepath.Join(t.TempDir(), "none"), Table: "lines", Record: "r", Steps: []Step{{Op: OpLoad}}})
	assert.ErrorContains(t, err, "failed to load schema")

	_, err = Run(&Scenario{Name: "x", Schema: schemaDir, Table: "ghost", Record: "r", Steps: []Step{{Op: OpLoad}}})
	assert.ErrorContains(t, err, `unknown table "ghost"`)
}

func TestNamer(t *testing.T) {
	n := newNamer()
	n.bind("a", "temp-0001")
	assert.Equal(t, "temp-0001", n.resolve("a"))
	assert.Equal(t, "zzz", n.resolve("zzz"))

	n.rename("temp-0001", "srv-1")
	assert.Equal(t, "srv-1", n.resolve("a"))
	assert.Equal(t, "a", n.name("srv-1"))

	n.rename("temp-0002", "srv-2")
	assert.Equal(t, "temp-0002", n.name("srv-2"), "unnamed rows keep their client id")

	assert.Equal(t, "temp-0009", n.name("temp-0009"))
	assert.Equal(t, "saved-1", n.name("0192f0c4-aaaa"))
	assert.Equal(t, "saved-1", n.name("0192f0c4-aaaa"))
}
