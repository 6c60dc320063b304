package factory

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
	"github.com/roach88/subsheet/internal/testutil"
)

var env = recalc.Env{Locale: language.English}

func TestCreate_StaticDefaultsOnCreate(t *testing.T) {
	set := field.MustSet(
		field.Definition{ID: "name", Type: field.TypeText, Default: ""},
		field.Definition{ID: "qty", Type: field.TypeNumber, Default: 0},
	)

	got := New(row.UUIDGenerator{}).Create(set, map[string]any{}, Options{IsCreate: true}, env)

	assert.Equal(t, map[string]any{"name": "", "qty": 0}, got.Row.Values)
	assert.True(t, got.Row.AllowEdit)
	require.True(t, strings.HasPrefix(got.Row.ID, row.PrefixTemp))
	_, err := uuid.Parse(strings.TrimPrefix(got.Row.ID, row.PrefixTemp))
	assert.NoError(t, err)
	assert.Empty(t, got.Async)
}

func TestCreate_ExplicitValueWinsAndUnknownDropped(t *testing.T) {
	set := field.MustSet(
		field.Definition{ID: "name", Type: field.TypeText, Default: "anon"},
		field.Definition{ID: "qty", Type: field.TypeNumber, Default: 1},
	)

	got := New(testutil.NewSequenceIDs()).Create(set, map[string]any{"qty": 4, "ghost": true}, Options{IsCreate: true}, env)

	assert.Equal(t, map[string]any{"name": "anon", "qty": 4}, got.Row.Values)
	assert.Equal(t, "temp-0001", got.Row.ID)
}

func TestCreate_DefaultsWithoutIsCreateSkipStatic(t *testing.T) {
	set := field.MustSet(
		field.Definition{ID: "name", Type: field.TypeText, Default: "anon"},
		field.Definition{ID: "qty", Type: field.TypeNumber, Default: 1},
	)
	f := New(testutil.NewSequenceIDs())

	got := f.Create(set, map[string]any{"qty": 4}, Options{}, env)
	assert.Equal(t, map[string]any{"qty": 4}, got.Row.Values)

	got = f.Create(set, nil, Options{}, env)
	assert.Equal(t, map[string]any{"name": "anon", "qty": 1}, got.Row.Values, "nil defaults fall back to static")
}

func TestCreate_DefaultValueNamespace(t *testing.T) {
	set := field.MustSet(field.Definition{ID: "name", Type: field.TypeText})
	got := New(testutil.NewSequenceIDs()).Create(set, nil, Options{IsDefaultValue: true}, env)
	assert.Equal(t, "default-0001", got.Row.ID)
	assert.Equal(t, row.KindDefault, row.IDKind(got.Row.ID))
}

func lineItems() field.Set {
	return field.MustSet(
		field.Definition{ID: "product", Type: field.TypeRelation, Config: field.RelationConfig{Table: "products"}},
		field.Definition{ID: "qty", Type: field.TypeNumber, Default: 2},
		field.Definition{ID: "unitPrice", Type: field.TypeNumber, Default: 5},
		field.Definition{ID: "subtotal", Type: field.TypeFormula, Config: field.FormulaConfig{
			Op: field.OpMul, Operands: []string{"qty", "unitPrice"},
		}},
		field.Definition{ID: "sku", Type: field.TypeLookup, Config: field.LookupConfig{Relation: "product", Field: "sku"}},
	)
}

func TestCreate_RunsInitialRecompute(t *testing.T) {
	got := New(testutil.NewSequenceIDs()).Create(lineItems(), map[string]any{"product": "p1"}, Options{IsCreate: true}, env)

	assert.Equal(t, 10.0, got.Row.Values["subtotal"])
	assert.Equal(t, []string{"sku"}, got.Async, "async work is returned, not resolved")
	assert.Nil(t, got.Row.Values["sku"])
}

func TestCreate_QueryFillSuppressesFilledAsync(t *testing.T) {
	got := New(testutil.NewSequenceIDs()).Create(lineItems(),
		map[string]any{"product": "p1", "sku": "from-query"},
		Options{IsCreate: true, IsQueryFill: true}, env)

	assert.Empty(t, got.Async)
	assert.Equal(t, "from-query", got.Row.Values["sku"])
}

func TestCreate_SetSnapshotIsIsolated(t *testing.T) {
	set := field.MustSet(field.Definition{ID: "status", Type: field.TypeSingleSelect, Default: "a",
		Config: field.SelectConfig{Options: []field.Option{{Key: "a"}}}})
	f := New(testutil.NewSequenceIDs())

	def, _ := set.Get("status")
	def.Default = "b"
	_, err := set.Replace(def)
	require.NoError(t, err)

	got := f.Create(set, nil, Options{IsCreate: true}, env)
	assert.Equal(t, "a", got.Row.Values["status"])
}

func TestCopy_FlagsAndNewID(t *testing.T) {
	set := field.MustSet(field.Definition{ID: "name", Type: field.TypeText})
	src := row.New("r1", map[string]any{"name": "widget", "stale": 1})
	src.IsEdited = true

	got := New(testutil.NewSequenceIDs()).Copy(set, src)

	assert.Equal(t, "temp-0001", got.ID)
	assert.True(t, got.IsCopy)
	assert.False(t, got.IsEdited)
	assert.Equal(t, map[string]any{"name": "widget"}, got.Values)
}

func TestFromRecords_OneRowPerRecord(t *testing.T) {
	got, err := New(testutil.NewSequenceIDs()).FromRecords(lineItems(), "product", []Record{
		{ID: "p1", Values: map[string]any{"unitPrice": 9, "color": "red"}},
		{ID: ""},
		{ID: "p2"},
	}, env)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "p1", got[0].Row.Values["product"])
	assert.Equal(t, 18.0, got[0].Row.Values["subtotal"])
	assert.NotContains(t, got[0].Row.Values, "color")
	assert.Equal(t, []string{"sku"}, got[0].Async)
	assert.Equal(t, "temp-0002", got[1].Row.ID)
}

func TestFromRecords_RejectsNonRelation(t *testing.T) {
	f := New(testutil.NewSequenceIDs())

	_, err := f.FromRecords(lineItems(), "ghost", nil, env)
	assert.True(t, errors.Is(err, recalc.ErrUnknownField))

	_, err = f.FromRecords(lineItems(), "qty", nil, env)
	assert.Error(t, err)
}
