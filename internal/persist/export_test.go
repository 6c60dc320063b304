package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

func exportFields() field.Set {
	return field.MustSet(
		field.Definition{ID: "name", Name: "Name", Type: field.TypeText},
		field.Definition{ID: "qty", Name: "Qty", Type: field.TypeNumber},
		field.Definition{ID: "status", Name: "Status", Type: field.TypeSingleSelect, Config: field.SelectConfig{
			Options: []field.Option{{Key: "open", Value: "Open", Index: 1}},
		}},
		field.Definition{ID: "secret", Name: "Secret", Type: field.TypeText, Permission: "000"},
	)
}

func TestCSVExporter_Golden(t *testing.T) {
	dir := t.TempDir()
	x := CSVExporter{Dir: filepath.Join(dir, "exports")}

	rows := []row.Row{
		row.New("r1", map[string]any{"name": "bolt, small", "qty": 2, "status": "open", "secret": "x"}),
		row.New("r2", map[string]any{"name": `say "hi"`, "qty": 1.5, "status": "gone"}),
		row.New("r3", nil),
	}
	require.NoError(t, x.Export(context.Background(), lines, exportFields(), rows, "lines"))

	data, err := os.ReadFile(filepath.Join(dir, "exports", "lines.csv"))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_lines", data)

	leftovers, err := filepath.Glob(filepath.Join(dir, "exports", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestCSVExporter_RejectsBadNames(t *testing.T) {
	x := CSVExporter{Dir: t.TempDir()}
	for _, name := range []string{"", "  ", "..", "a/b", `a\b`, ".csv"} {
		err := x.Export(context.Background(), lines, exportFields(), nil, name)
		assert.Error(t, err, "filename %q", name)
	}
}

func TestCSVExporter_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	x := CSVExporter{Dir: dir}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := x.Export(ctx, lines, exportFields(), []row.Row{row.New("r1", nil)}, "lines")
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(dir, "lines.csv"))
	assert.True(t, os.IsNotExist(statErr))
}
