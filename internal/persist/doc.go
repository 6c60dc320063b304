// Package persist stores sub-table rows and related records in SQLite.
//
// It stands in for the row persistence API the engine talks to:
//   - subtable_rows: saved rows, ordered by position within their parent
//   - records: related records read by lookup fields
//   - field_edits: append-only log of the fields each save changed
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Deleting a row drops its edit log
//
// Rows are ordered by position ASC, id ASC COLLATE BINARY so paging is
// stable across reads.
package persist
