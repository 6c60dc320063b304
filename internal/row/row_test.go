package row

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedGen string

func (g fixedGen) Generate() string { return string(g) }

func TestIDKind(t *testing.T) {
	assert.Equal(t, KindTemp, IDKind("temp-abc"))
	assert.Equal(t, KindDefault, IDKind("default-abc"))
	assert.Equal(t, KindPersisted, IDKind("64f0c1"))
	assert.True(t, IsClientID("temp-1"))
	assert.False(t, IsClientID("r1"))
	assert.Equal(t, "default", KindDefault.String())
}

func TestNewID_Prefixes(t *testing.T) {
	assert.Equal(t, "temp-x", NewID(fixedGen("x"), KindTemp))
	assert.Equal(t, "default-x", NewID(fixedGen("x"), KindDefault))
	assert.Equal(t, "temp-x", NewID(fixedGen("x"), KindPersisted))
}

func TestUUIDGenerator_ProducesValidUUIDs(t *testing.T) {
	id := NewID(UUIDGenerator{}, KindTemp)
	_, err := uuid.Parse(id[len(PrefixTemp):])
	require.NoError(t, err)
}

func TestRow_CloneIsIndependent(t *testing.T) {
	r := New("r1", map[string]any{"a": 1})
	r.MarkUpdated("a")

	c := r.Clone()
	c.Values["a"] = 2
	c.MarkUpdated("b")

	assert.Equal(t, 1, r.Values["a"])
	assert.Equal(t, []string{"a"}, r.UpdatedFieldIDs)
}

func TestRow_CloneOfZeroHasMap(t *testing.T) {
	var r Row
	c := r.Clone()
	require.NotNil(t, c.Values)
}

func TestRow_MarkUpdatedDedupes(t *testing.T) {
	var r Row
	r.MarkUpdated("a", "b", "a", "", "c", "b")
	assert.Equal(t, []string{"a", "b", "c"}, r.UpdatedFieldIDs)
}

func TestRow_Merge(t *testing.T) {
	var r Row
	r.Merge(map[string]any{"a": 1})
	r.Merge(map[string]any{"b": 2, "a": 3})
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, r.Values)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("  "))
	assert.True(t, IsEmpty([]any{}))
	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty("x"))
}
