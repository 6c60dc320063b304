package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderFields() []Definition {
	return []Definition{
		{ID: "qty", Type: TypeNumber, Default: 0},
		{ID: "unitPrice", Type: TypeNumber},
		{ID: "subtotal", Type: TypeFormula, Config: FormulaConfig{Op: OpMul, Operands: []string{"qty", "unitPrice"}}},
		{ID: "lineTotal", Type: TypeNumber, Advanced: map[string]string{
			KeyDefaultSource: `[{"cid":"unitPrice"}]`,
		}},
		{ID: "label", Type: TypeConcat, Config: ConcatConfig{Sources: []string{"qty", "subtotal"}, Separator: " x "}},
	}
}

func TestNewSet_RejectsDuplicateIDs(t *testing.T) {
	_, err := NewSet(Definition{ID: "a", Type: TypeText}, Definition{ID: "a", Type: TypeText})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewSet_RejectsEmptyID(t *testing.T) {
	_, err := NewSet(Definition{Name: "nameless", Type: TypeText})
	require.Error(t, err)
}

func TestNewSet_UnknownTypeDegradesToText(t *testing.T) {
	s, err := NewSet(Definition{ID: "x", Type: "hologram"})
	require.NoError(t, err)

	d, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, TypeText, d.Type)
}

func TestSet_Kinds(t *testing.T) {
	s := MustSet(orderFields()...)

	assert.Equal(t, RecomputeNone, s.Kind("qty"))
	assert.Equal(t, RecomputeSync, s.Kind("subtotal"))
	assert.Equal(t, RecomputeAsync, s.Kind("lineTotal"))
	assert.Equal(t, RecomputeSync, s.Kind("label"))
	assert.Equal(t, RecomputeNone, s.Kind("missing"))
	assert.True(t, s.IsAsync("lineTotal"))
}

func TestSet_DependentsIncludeDefaultSource(t *testing.T) {
	s := MustSet(orderFields()...)

	assert.Equal(t, []string{"subtotal", "lineTotal"}, s.Dependents("unitPrice"))
	assert.Equal(t, []string{"subtotal", "label"}, s.Dependents("qty"))
	assert.Equal(t, []string{"label"}, s.Dependents("subtotal"))
}

func TestSet_TopoOrderPutsInputsFirst(t *testing.T) {
	s := MustSet(orderFields()...)

	order := s.TopoOrder()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, "subtotal"), indexOf(order, "label"))
}

func TestSet_CycleExcludesFields(t *testing.T) {
	s := MustSet(
		Definition{ID: "a", Type: TypeFormula, Config: FormulaConfig{Op: OpAdd, Operands: []string{"b"}}},
		Definition{ID: "b", Type: TypeFormula, Config: FormulaConfig{Op: OpAdd, Operands: []string{"a"}}},
		Definition{ID: "c", Type: TypeFormula, Config: FormulaConfig{Op: OpAdd, Operands: []string{"n"}}},
		Definition{ID: "n", Type: TypeNumber},
	)

	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, []string{"a", "b"}, s.Warnings()[0].Path)
	assert.Equal(t, RecomputeNone, s.Kind("a"))
	assert.Equal(t, RecomputeSync, s.Kind("c"))
	assert.Equal(t, []string{"c"}, s.TopoOrder())
}

func TestSet_SelfLoopIsCycle(t *testing.T) {
	s := MustSet(Definition{ID: "a", Type: TypeConcat, Config: ConcatConfig{Sources: []string{"a"}}})
	require.Len(t, s.Warnings(), 1)
	assert.Empty(t, s.TopoOrder())
}

func TestNewSet_MalformedDefaultSourceIsDropped(t *testing.T) {
	s, err := NewSet(
		Definition{ID: "src", Type: TypeText},
		Definition{ID: "dst", Type: TypeText, Advanced: map[string]string{KeyDefaultSource: "[{broken"}},
	)
	require.NoError(t, err)

	assert.Equal(t, RecomputeNone, s.Kind("dst"))
	assert.Empty(t, s.Dependents("src"))
}

func TestSet_FilterDropsUnknownIDs(t *testing.T) {
	s := MustSet(orderFields()...)

	got := s.Filter(map[string]any{"qty": 2, "ghost": "boo"})
	assert.Equal(t, map[string]any{"qty": 2}, got)
}

func TestSet_ReplaceKeepsOriginalUntouched(t *testing.T) {
	s := MustSet(Definition{ID: "c", Type: TypeSingleSelect, Config: SelectConfig{
		Options: []Option{{Key: "a", Value: "A"}},
	}})

	d, _ := s.Get("c")
	next, err := s.Replace(WithOption(d, Option{Key: "b", Value: "B"}))
	require.NoError(t, err)

	before, _ := s.Get("c")
	after, _ := next.Get("c")
	assert.Len(t, before.Config.(SelectConfig).Options, 1)
	assert.Len(t, after.Config.(SelectConfig).Options, 2)
	assert.Equal(t, 2, after.Config.(SelectConfig).Options[1].Index)
}

func TestWithOption_ExistingKeyIsNoop(t *testing.T) {
	d := Definition{ID: "c", Type: TypeMultiSelect, Config: SelectConfig{Options: []Option{{Key: "a"}}}}
	got := WithOption(d, Option{Key: "a", Value: "again"})
	assert.Len(t, got.Config.(SelectConfig).Options, 1)
}

func TestDefinition_Editable(t *testing.T) {
	assert.True(t, Definition{Type: TypeText}.Editable())
	assert.False(t, Definition{Type: TypeFormula}.Editable())
	assert.False(t, Definition{Type: TypeText, Permission: "101"}.Editable())
	assert.False(t, Definition{Type: TypeText, Permission: PermissionNone}.Editable())
}

func TestPermission_With(t *testing.T) {
	assert.Equal(t, Permission("111"), Permission("110").With(2, true))
	assert.Equal(t, Permission("101"), Permission("111").With(1, false))
	assert.Equal(t, Permission("111"), Permission("").With(2, true))
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
