package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutRecord creates or replaces a related record.
func (s *Store) PutRecord(ctx context.Context, table, id string, values map[string]any) error {
	if table == "" || id == "" {
		return errors.New("put record: table and id are required")
	}
	data, err := marshalValues(values)
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", table, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (table_id, id, data) VALUES (?, ?, ?)
		ON CONFLICT(table_id, id) DO UPDATE SET data = excluded.data
	`, table, id, data)
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", table, id, err)
	}
	return nil
}

// FetchRecord returns the values of a related record, or nil if it does
// not exist.
func (s *Store) FetchRecord(ctx context.Context, table, id string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE table_id = ? AND id = ?`, table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch record %s/%s: %w", table, id, err)
	}
	return unmarshalValues(data)
}
