package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/subsheet/internal/row"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Rows     []RowSnapshot // final rows for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFinal rows:\n")
	for i, r := range e.Rows {
		fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, r.ID, r.Values)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		return assertRowCount(result, a)
	case AssertRowValues:
		return assertRowValues(result, a)
	case AssertRowOrder:
		return assertRowOrder(result, a)
	case AssertCellError:
		return assertCellError(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertRowCount(result *Result, a Assertion) error {
	if len(result.Rows) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Expected: fmt.Sprintf("%d row(s)", a.Count),
		Actual:   fmt.Sprintf("%d row(s)", len(result.Rows)),
		Rows:     result.Rows,
	}
}

// assertRowValues is a subset match. Numbers compare by value, so 4 in
// the scenario matches a stored 4.0.
func assertRowValues(result *Result, a Assertion) error {
	r, ok := result.row(a.Row)
	if !ok {
		return &AssertionError{Type: AssertRowValues, Expected: "row " + a.Row, Actual: "no such row", Rows: result.Rows}
	}
	for k, want := range a.Expect {
		got := r.Values[k]
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertRowValues,
				Expected: fmt.Sprintf("%s.%s = %v", a.Row, k, want),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Row, k, got),
				Rows:     result.Rows,
			}
		}
	}
	return nil
}

func valuesEqual(got, want any) bool {
	if gn, ok := numeric(got); ok {
		wn, ok := numeric(want)
		return ok && gn == wn
	}
	return cmp.Equal(got, want)
}

func numeric(v any) (float64, bool) {
	switch v.(type) {
	case int, int64, float64:
		return row.Number(v)
	}
	return 0, false
}

// assertRowOrder checks the named rows appear in this relative order.
// Other rows may sit between them.
func assertRowOrder(result *Result, a Assertion) error {
	pos := make(map[string]int, len(result.Rows))
	for i, r := range result.Rows {
		pos[r.ID] = i
	}
	last := -1
	for _, name := range a.Rows {
		i, ok := pos[name]
		if !ok || i < last {
			actual := make([]string, len(result.Rows))
			for j, r := range result.Rows {
				actual[j] = r.ID
			}
			return &AssertionError{
				Type:     AssertRowOrder,
				Expected: fmt.Sprintf("rows in order %v", a.Rows),
				Actual:   fmt.Sprintf("%v", actual),
				Rows:     result.Rows,
			}
		}
		last = i
	}
	return nil
}

// assertCellError checks a cell carries an error. An empty code matches
// any error.
func assertCellError(result *Result, a Assertion) error {
	for _, c := range result.Cells {
		if c.Row == a.Row && c.Field == a.Field && (a.Code == "" || c.Code == a.Code) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCellError,
		Expected: fmt.Sprintf("%s.%s has error %s", a.Row, a.Field, codeOrAny(a.Code)),
		Actual:   fmt.Sprintf("cell errors %v", result.Cells),
		Rows:     result.Rows,
	}
}

func codeOrAny(code string) string {
	if code == "" {
		return "(any)"
	}
	return code
}
