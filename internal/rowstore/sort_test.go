package rowstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

func valued(fieldID string, pairs ...any) []row.Row {
	var out []row.Row
	for i := 0; i < len(pairs); i += 2 {
		r := row.New(pairs[i].(string), nil)
		if pairs[i+1] != nil {
			r.Values[fieldID] = pairs[i+1]
		}
		out = append(out, r)
	}
	return out
}

func TestSortByField_NumbersNumerically(t *testing.T) {
	s := New()
	s.Load(valued("qty", "a", 10, "b", "9", "c", nil, "d", 2.5))

	s.SortByField(field.Definition{ID: "qty", Type: field.TypeNumber}, true, language.English)
	assert.Equal(t, []string{"d", "b", "a", "c"}, s.IDs())

	s.SortByField(field.Definition{ID: "qty", Type: field.TypeNumber}, false, language.English)
	assert.Equal(t, []string{"a", "b", "d", "c"}, s.IDs(), "empty stays last when descending")
}

func TestSortByField_TextUsesCollation(t *testing.T) {
	s := New()
	s.Load(valued("name", "1", "b", "2", "Á", "3", "a", "4", "item10", "5", "item9"))

	s.SortByField(field.Definition{ID: "name", Type: field.TypeText}, true, language.English)
	assert.Equal(t, []string{"3", "2", "1", "5", "4"}, s.IDs())
}

func TestSortByField_SelectByOptionOrder(t *testing.T) {
	def := field.Definition{ID: "status", Type: field.TypeSingleSelect, Config: field.SelectConfig{
		Options: []field.Option{{Key: "todo"}, {Key: "doing"}, {Key: "done"}},
	}}
	s := New()
	s.Load(valued("status", "a", "done", "b", "todo", "c", "gone", "d", "doing"))

	s.SortByField(def, true, language.English)
	assert.Equal(t, []string{"b", "d", "a", "c"}, s.IDs())
}

func TestSortRules_MultipleKeysAndUnknownField(t *testing.T) {
	set := field.MustSet(
		field.Definition{ID: "group", Type: field.TypeText},
		field.Definition{ID: "qty", Type: field.TypeNumber},
	)
	rows := []row.Row{
		row.New("a", map[string]any{"group": "x", "qty": 1}),
		row.New("b", map[string]any{"group": "w", "qty": 5}),
		row.New("c", map[string]any{"group": "x", "qty": 3}),
	}
	s := New()
	s.Load(rows)

	s.SortRules(set, []field.SortRule{
		{FieldID: "ghost", Asc: true},
		{FieldID: "group", Asc: true},
		{FieldID: "qty", Asc: false},
	}, language.English)

	assert.Equal(t, []string{"b", "c", "a"}, s.IDs())
}

func TestSortRules_NoUsableRuleLeavesOrder(t *testing.T) {
	s := New()
	s.Load(rowsOf("b", "a"))
	v := s.Version()

	s.SortRules(field.MustSet(field.Definition{ID: "name", Type: field.TypeText}), nil, language.English)
	assert.Equal(t, []string{"b", "a"}, s.IDs())
	assert.Equal(t, v, s.Version())
}
