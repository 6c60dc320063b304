package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

// Edit is one entry of the field edit log.
type Edit struct {
	Seq      int64
	RowID    string
	FieldID  string
	Value    any
	Revision int64
}

// FetchRows returns one page of the rows under ref. Pages start at 1; a
// page past the end is empty, not an error.
func (s *Store) FetchRows(ctx context.Context, ref row.Ref, page int) ([]row.Row, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data
		FROM subtable_rows
		WHERE table_id = ? AND record_id = ? AND field_id = ?
		ORDER BY position ASC, id COLLATE BINARY ASC
		LIMIT ? OFFSET ?
	`, ref.Table, ref.Record, ref.Field, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query rows of %s: %w", ref, err)
	}
	defer rows.Close()

	out := []row.Row{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		values, err := unmarshalValues(data)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", id, err)
		}
		out = append(out, row.New(id, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// SaveRow writes r under ref and returns the row as stored. A client row
// (temp- or default- id) is inserted at the end under a new UUIDv7 id;
// a saved row is updated in place and its revision bumped. Every field in
// r.UpdatedFieldIDs is appended to the edit log.
func (s *Store) SaveRow(ctx context.Context, ref row.Ref, r row.Row) (row.Row, error) {
	if r.ID == "" {
		return row.Row{}, errors.New("save row: empty id")
	}

	id := r.ID
	values := maps.Clone(r.Values)
	if values == nil {
		values = map[string]any{}
	}
	if row.IsClientID(id) {
		u, err := uuid.NewV7()
		if err != nil {
			return row.Row{}, fmt.Errorf("save row: new id: %w", err)
		}
		id = u.String()
		if _, ok := values[field.OwnerFieldID]; !ok && s.owner != "" {
			values[field.OwnerFieldID] = s.owner
		}
	}

	data, err := marshalValues(values)
	if err != nil {
		return row.Row{}, fmt.Errorf("save row %s: %w", r.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return row.Row{}, fmt.Errorf("save row: begin: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM subtable_rows WHERE id = ?`, id).Scan(&revision)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		revision = 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subtable_rows (id, table_id, record_id, field_id, position, data, revision)
			VALUES (?, ?, ?, ?, (
				SELECT COALESCE(MAX(position), 0) + 1 FROM subtable_rows
				WHERE table_id = ? AND record_id = ? AND field_id = ?
			), ?, ?)
		`, id, ref.Table, ref.Record, ref.Field, ref.Table, ref.Record, ref.Field, data, revision)
	case err == nil:
		revision++
		_, err = tx.ExecContext(ctx, `UPDATE subtable_rows SET data = ?, revision = ? WHERE id = ?`, data, revision, id)
	}
	if err != nil {
		return row.Row{}, fmt.Errorf("save row %s: %w", r.ID, err)
	}

	for _, fid := range r.UpdatedFieldIDs {
		v, ok := values[fid]
		if !ok {
			continue
		}
		enc, err := encode(v)
		if err != nil {
			return row.Row{}, fmt.Errorf("save row %s: field %s: %w", r.ID, fid, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO field_edits (row_id, field_id, value, revision) VALUES (?, ?, ?, ?)
		`, id, fid, enc, revision); err != nil {
			return row.Row{}, fmt.Errorf("log edit %s/%s: %w", id, fid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return row.Row{}, fmt.Errorf("save row: commit: %w", err)
	}
	return row.New(id, values), nil
}

// DeleteRow removes a saved row and its edit log. Deleting a row that does
// not exist is not an error.
func (s *Store) DeleteRow(ctx context.Context, ref row.Ref, rowID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM subtable_rows
		WHERE id = ? AND table_id = ? AND record_id = ? AND field_id = ?
	`, rowID, ref.Table, ref.Record, ref.Field)
	if err != nil {
		return fmt.Errorf("delete row %s: %w", rowID, err)
	}
	return nil
}

// Edits returns the edit log of a row, oldest first.
func (s *Store) Edits(ctx context.Context, rowID string) ([]Edit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, row_id, field_id, value, revision
		FROM field_edits
		WHERE row_id = ?
		ORDER BY seq ASC
	`, rowID)
	if err != nil {
		return nil, fmt.Errorf("query edits: %w", err)
	}
	defer rows.Close()

	out := []Edit{}
	for rows.Next() {
		var e Edit
		var raw string
		if err := rows.Scan(&e.Seq, &e.RowID, &e.FieldID, &raw, &e.Revision); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &e.Value); err != nil {
			return nil, fmt.Errorf("edit %d: %w", e.Seq, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return out, nil
}
