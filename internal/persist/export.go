package persist

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// CSVExporter writes sub-tables to <Dir>/<filename>.csv.
type CSVExporter struct {
	Dir string
}

// Export writes one header line of field names, then one line per row.
// Select values are written as option labels. Only visible columns are
// exported.
func (x CSVExporter) Export(ctx context.Context, ref row.Ref, fields field.Set, rows []row.Row, filename string) error {
	name, err := exportName(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(x.Dir, 0o755); err != nil {
		return fmt.Errorf("export %s: %w", ref, err)
	}

	path := filepath.Join(x.Dir, name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("export %s: %w", ref, err)
	}
	defer os.Remove(tmp)

	if err := writeCSV(ctx, f, fields, rows); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export %s: %w", ref, err)
	}
	return os.Rename(tmp, path)
}

func exportName(filename string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(filename), ".csv")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("export: invalid filename %q", filename)
	}
	return name + ".csv", nil
}

func writeCSV(ctx context.Context, out io.Writer, fields field.Set, rows []row.Row) error {
	cols := field.Columns(fields.All())
	defs := make([]field.Definition, len(cols))
	header := make([]string, len(cols))
	for i, id := range cols {
		defs[i], _ = fields.Get(id)
		header[i] = defs[i].Name
		if header[i] == "" {
			header[i] = id
		}
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, def := range defs {
			rec[i] = cellText(def, r.Values[def.ID])
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func cellText(def field.Definition, v any) string {
	cfg, ok := def.Config.(field.SelectConfig)
	if !ok {
		return row.Text(v)
	}
	keys := row.Keys(v)
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		if i := cfg.IndexOf(k); i >= 0 {
			labels = append(labels, cfg.Options[i].Value)
			continue
		}
		labels = append(labels, k)
	}
	return strings.Join(labels, ",")
}
