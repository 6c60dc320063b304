// Package rowstore keeps the ordered rows of one sub-table instance.
//
// Every operation that names a row id is a no-op when the row is absent.
// Async work routinely lands after the user deleted or replaced its row, so
// a missing id is an expected state, not an error.
//
// A Store is not safe for concurrent use. The engine event loop owns it.
package rowstore

import (
	"slices"

	"github.com/roach88/subsheet/internal/row"
)

// Patch is a partial update merged into a row.
type Patch struct {
	Values map[string]any

	// Edited marks the row as touched by the user. It never clears the flag.
	Edited bool

	// Updated is appended to the row's UpdatedFieldIDs.
	Updated []string
}

// Store is an ordered collection of rows keyed by row id.
type Store struct {
	rows    []row.Row
	index   map[string]int
	origin  []row.Row
	next    int64
	version uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Load replaces the whole collection. Display order follows the slice
// position, and the loaded rows become the target of Reset.
// Rows with duplicate ids keep their first occurrence.
func (s *Store) Load(rows []row.Row) {
	s.replace(rows)
	s.origin = s.snapshot()
}

// ReplaceAll swaps in a new row set and returns the ids that were present
// before, so callers can drop caches keyed by them.
func (s *Store) ReplaceAll(rows []row.Row) (removed []string) {
	removed = s.IDs()
	s.replace(rows)
	return removed
}

func (s *Store) replace(rows []row.Row) {
	s.rows = make([]row.Row, 0, len(rows))
	s.index = make(map[string]int, len(rows))
	for _, r := range rows {
		if _, dup := s.index[r.ID]; dup || r.ID == "" {
			continue
		}
		r = r.Clone()
		r.AddedAt = int64(len(s.rows))
		s.index[r.ID] = len(s.rows)
		s.rows = append(s.rows, r)
	}
	s.next = int64(len(s.rows))
	s.version++
}

// Insert adds r after the row afterID, or at the end when afterID is empty
// or unknown. It returns false, leaving the store unchanged, when r's id is
// already present.
func (s *Store) Insert(r row.Row, afterID string) bool {
	if r.ID == "" {
		return false
	}
	if _, dup := s.index[r.ID]; dup {
		return false
	}
	r = r.Clone()
	r.AddedAt = s.next
	s.next++

	pos := len(s.rows)
	if i, ok := s.index[afterID]; ok && afterID != "" {
		pos = i + 1
	}
	s.rows = slices.Insert(s.rows, pos, r)
	s.reindex(pos)
	s.version++
	return true
}

// InsertMany appends rows in order and returns how many were inserted.
func (s *Store) InsertMany(rows []row.Row) int {
	n := 0
	for _, r := range rows {
		if s.Insert(r, "") {
			n++
		}
	}
	return n
}

// Update merges p into the row with the given id. It reports whether the
// row exists. Applying the same patch twice leaves the same state as once.
func (s *Store) Update(id string, p Patch) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	r := &s.rows[i]
	r.Merge(p.Values)
	if p.Edited {
		r.IsEdited = true
	}
	r.MarkUpdated(p.Updated...)
	s.version++
	return true
}

// Put replaces the row with the same id wholesale, keeping its position and
// AddedAt. It reports whether the row exists.
func (s *Store) Put(r row.Row) bool {
	i, ok := s.index[r.ID]
	if !ok {
		return false
	}
	r = r.Clone()
	r.AddedAt = s.rows[i].AddedAt
	s.rows[i] = r
	s.version++
	return true
}

// Remove deletes the row with the given id and reports whether it existed.
func (s *Store) Remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.rows = slices.Delete(s.rows, i, i+1)
	delete(s.index, id)
	s.reindex(i)
	s.version++
	return true
}

// ReplaceID swaps the row oldID for r in place. It is used when a
// client-side row receives its server id: there is never a state holding
// both rows. It returns false if oldID is absent or r's id belongs to
// another row.
func (s *Store) ReplaceID(oldID string, r row.Row) bool {
	i, ok := s.index[oldID]
	if !ok || r.ID == "" {
		return false
	}
	if j, taken := s.index[r.ID]; taken && j != i {
		return false
	}
	r = r.Clone()
	r.AddedAt = s.rows[i].AddedAt
	delete(s.index, oldID)
	s.rows[i] = r
	s.index[r.ID] = i
	s.version++
	return true
}

// Reorder stable-sorts the rows with cmp. Rows comparing equal keep their
// prior relative order.
func (s *Store) Reorder(cmp func(a, b row.Row) int) {
	slices.SortStableFunc(s.rows, cmp)
	s.reindex(0)
	s.version++
}

// Move places the row at index, clamped to the collection bounds.
func (s *Store) Move(id string, index int) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	index = max(0, min(index, len(s.rows)-1))
	if index == i {
		return true
	}
	r := s.rows[i]
	s.rows = slices.Delete(s.rows, i, i+1)
	s.rows = slices.Insert(s.rows, index, r)
	s.reindex(min(i, index))
	s.version++
	return true
}

// Reset restores the rows from the last Load and returns the ids that are
// no longer present.
func (s *Store) Reset() (removed []string) {
	keep := make(map[string]bool, len(s.origin))
	for _, r := range s.origin {
		keep[r.ID] = true
	}
	for _, r := range s.rows {
		if !keep[r.ID] {
			removed = append(removed, r.ID)
		}
	}
	s.replace(s.origin)
	return removed
}

// Get returns a copy of the row with the given id.
func (s *Store) Get(id string) (row.Row, bool) {
	i, ok := s.index[id]
	if !ok {
		return row.Row{}, false
	}
	return s.rows[i].Clone(), true
}

// Has reports whether a row with the given id is present.
func (s *Store) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Find returns a copy of the first row matching pred, in display order.
func (s *Store) Find(pred func(row.Row) bool) (row.Row, bool) {
	for _, r := range s.rows {
		if pred(r) {
			return r.Clone(), true
		}
	}
	return row.Row{}, false
}

// Rows returns copies of all rows in display order.
func (s *Store) Rows() []row.Row { return cloneAll(s.rows) }

// IDs returns the row ids in display order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.ID
	}
	return out
}

// Len returns the number of rows.
func (s *Store) Len() int { return len(s.rows) }

// Version increases on every mutation that changed the store.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) snapshot() []row.Row { return cloneAll(s.rows) }

func (s *Store) reindex(from int) {
	for i := from; i < len(s.rows); i++ {
		s.index[s.rows[i].ID] = i
	}
}

func cloneAll(rows []row.Row) []row.Row {
	out := make([]row.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
