package rowstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/subsheet/internal/row"
)

func rowsOf(ids ...string) []row.Row {
	out := make([]row.Row, len(ids))
	for i, id := range ids {
		out[i] = row.New(id, map[string]any{"name": id})
	}
	return out
}

func TestStore_LoadAssignsPositions(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b", "c"))

	rows := s.Rows()
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, int64(i), r.AddedAt)
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())
}

func TestStore_LoadDropsDuplicateIDs(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "a", "b"))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
}

func TestStore_InsertAppendsOrFollowsAnchor(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))

	require.True(t, s.Insert(row.New("x", nil), "a"))
	require.True(t, s.Insert(row.New("y", nil), ""))
	require.True(t, s.Insert(row.New("z", nil), "missing"), "unknown anchor appends")

	assert.Equal(t, []string{"a", "x", "b", "y", "z"}, s.IDs())

	x, _ := s.Get("x")
	y, _ := s.Get("y")
	assert.Less(t, x.AddedAt, y.AddedAt)
}

func TestStore_InsertDuplicateIsNoop(t *testing.T) {
	s := New()
	s.Load(rowsOf("a"))
	v := s.Version()

	assert.False(t, s.Insert(row.New("a", map[string]any{"name": "other"}), ""))
	assert.Equal(t, v, s.Version())

	r, _ := s.Get("a")
	assert.Equal(t, "a", r.Values["name"])
}

func TestStore_AbsentIDsAreNoops(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))
	before := s.Rows()
	v := s.Version()

	assert.False(t, s.Update("ghost", Patch{Values: map[string]any{"name": "boo"}}))
	assert.False(t, s.Remove("ghost"))
	assert.False(t, s.Move("ghost", 0))
	assert.False(t, s.ReplaceID("ghost", row.New("new", nil)))
	assert.False(t, s.Put(row.New("ghost", nil)))

	assert.Equal(t, before, s.Rows())
	assert.Equal(t, v, s.Version())
}

func TestStore_UpdateIsIdempotent(t *testing.T) {
	p := Patch{Values: map[string]any{"qty": 5}, Edited: true, Updated: []string{"qty", "total"}}

	once := New()
	once.Load(rowsOf("a"))
	once.Update("a", p)

	twice := New()
	twice.Load(rowsOf("a"))
	twice.Update("a", p)
	twice.Update("a", p)

	assert.Equal(t, once.Rows(), twice.Rows())

	r, _ := twice.Get("a")
	assert.True(t, r.IsEdited)
	assert.Equal(t, []string{"qty", "total"}, r.UpdatedFieldIDs)
}

func TestStore_RemoveKeepsIndexConsistent(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b", "c"))

	require.True(t, s.Remove("a"))
	require.True(t, s.Update("c", Patch{Values: map[string]any{"name": "C"}}))

	r, ok := s.Get("c")
	require.True(t, ok)
	assert.Equal(t, "C", r.Values["name"])
	assert.Equal(t, []string{"b", "c"}, s.IDs())
}

func TestStore_ReplaceAllReportsRemovedIDs(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))

	removed := s.ReplaceAll(rowsOf("c"))
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, []string{"c"}, s.IDs())
}

func TestStore_ReplaceAllThenLoadRoundTrips(t *testing.T) {
	input := rowsOf("r3", "r1", "r2")

	s := New()
	s.ReplaceAll(input)
	afterReplace := s.Rows()

	s.Load(input)
	assert.Equal(t, afterReplace, s.Rows())
}

func TestStore_ReplaceIDSwapsInPlace(t *testing.T) {
	s := New()
	s.Load(rowsOf("a"))
	s.Insert(row.New("temp-1", map[string]any{"name": "new"}), "")
	s.Insert(row.New("b", nil), "")
	before, _ := s.Get("temp-1")

	persisted := row.New("srv-9", map[string]any{"name": "new"})
	require.True(t, s.ReplaceID("temp-1", persisted))

	assert.Equal(t, []string{"a", "srv-9", "b"}, s.IDs())
	assert.False(t, s.Has("temp-1"))
	got, _ := s.Get("srv-9")
	assert.Equal(t, before.AddedAt, got.AddedAt)
	assert.Equal(t, 3, s.Len())
}

func TestStore_ReplaceIDRejectsTakenID(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))
	assert.False(t, s.ReplaceID("a", row.New("b", nil)))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
}

func TestStore_ReorderIsStable(t *testing.T) {
	s := New()
	rows := rowsOf("a", "b", "c", "d")
	rows[0].Values["g"] = 2
	rows[1].Values["g"] = 1
	rows[2].Values["g"] = 2
	rows[3].Values["g"] = 1
	s.Load(rows)

	s.Reorder(func(x, y row.Row) int { return x.Values["g"].(int) - y.Values["g"].(int) })

	assert.Equal(t, []string{"b", "d", "a", "c"}, s.IDs())
	assert.True(t, s.Update("a", Patch{Edited: true}), "index follows reorder")
}

func TestStore_Move(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b", "c"))

	require.True(t, s.Move("c", 0))
	assert.Equal(t, []string{"c", "a", "b"}, s.IDs())

	require.True(t, s.Move("c", 99))
	assert.Equal(t, []string{"a", "b", "c"}, s.IDs())
}

func TestStore_ResetRestoresLoadedRows(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))

	s.Update("a", Patch{Values: map[string]any{"name": "changed"}, Edited: true})
	s.Insert(row.New("temp-1", nil), "")
	s.Remove("b")

	removed := s.Reset()
	assert.Equal(t, []string{"temp-1"}, removed)
	assert.Equal(t, []string{"a", "b"}, s.IDs())

	a, _ := s.Get("a")
	assert.Equal(t, "a", a.Values["name"])
	assert.False(t, a.IsEdited)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	s.Load(rowsOf("a"))

	r, _ := s.Get("a")
	r.Values["name"] = "mutated"

	again, _ := s.Get("a")
	assert.Equal(t, "a", again.Values["name"])
}

func TestStore_Find(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))

	r, ok := s.Find(func(r row.Row) bool { return r.Values["name"] == "b" })
	require.True(t, ok)
	assert.Equal(t, "b", r.ID)

	_, ok = s.Find(func(row.Row) bool { return false })
	assert.False(t, ok)
}

func TestStore_PutKeepsPosition(t *testing.T) {
	s := New()
	s.Load(rowsOf("a", "b"))

	require.True(t, s.Put(row.New("a", map[string]any{"name": "A"})))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	r, _ := s.Get("a")
	assert.Equal(t, "A", r.Values["name"])
	assert.Equal(t, int64(0), r.AddedAt)
}
