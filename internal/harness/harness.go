package harness

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/subsheet/internal/engine"
	"github.com/roach88/subsheet/internal/factory"
	"github.com/roach88/subsheet/internal/persist"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
	"github.com/roach88/subsheet/internal/schema"
	"github.com/roach88/subsheet/internal/testutil"
)

// stepTimeout bounds each step, including the wait for async recomputes.
const stepTimeout = 10 * time.Second

// Harness drives one engine through the steps of a scenario.
type Harness struct {
	eng   *engine.Engine
	names *namer
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a sequence id
// generator, so results are reproducible. After every step the harness
// waits for async recomputes to settle before running the next one.
//
// The returned error covers setup failures only; a step that does not
// meet its expectation is recorded in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	tables, errs := schema.LoadTables(scenario.Schema)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errors.Join(errs...))
	}
	tbl, ok := tables[scenario.Table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q (have %v)", scenario.Table, schema.IDs(tables))
	}

	st, err := persist.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, rec := range scenario.Records {
		if err := st.PutRecord(ctx, rec.Table, rec.ID, rec.Values); err != nil {
			return nil, fmt.Errorf("failed to seed record: %w", err)
		}
	}

	opts := []engine.Option{
		engine.WithPersistence(st),
		engine.WithResolver(&recalc.SourceResolver{Records: st}),
		engine.WithIDGenerator(testutil.NewSequenceIDs()),
		engine.WithSettings(tbl.Settings),
		engine.WithEnv(recalc.Env{Locale: language.English}),
	}
	if tbl.MaxRows > 0 {
		opts = append(opts, engine.WithMaxRows(tbl.MaxRows))
	}
	eng := engine.New(row.Ref{Table: scenario.Table, Record: scenario.Record}, tbl.Fields, opts...)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	defer func() {
		eng.Stop()
		<-done
	}()

	h := &Harness{eng: eng, names: newNamer()}
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and records it. Engine errors are outcomes; only
// a stopped engine or an expired step is returned.
func (h *Harness) execute(parent context.Context, n int, step Step, result *Result) error {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	ev := TraceEvent{Step: n, Op: step.Op, Field: step.Field, Outcome: "ok"}
	var err error

	switch step.Op {
	case OpAdd:
		var r row.Row
		r, err = h.eng.AddRow(ctx, step.Values, h.names.resolve(step.After))
		if err == nil {
			if step.As != "" {
				h.names.bind(step.As, r.ID)
			}
			ev.Row = h.names.name(r.ID)
		}

	case OpAddRecords:
		picks := make([]factory.Record, len(step.Picks))
		for i, p := range step.Picks {
			picks[i] = factory.Record{ID: p.ID, Values: p.Values}
		}
		var rows []row.Row
		rows, err = h.eng.AddFromRecords(ctx, step.Field, picks, "")
		if err == nil {
			names := make([]string, len(rows))
			for i, r := range rows {
				if i < len(step.Names) {
					h.names.bind(step.Names[i], r.ID)
				}
				names[i] = h.names.name(r.ID)
			}
			ev.Row = strings.Join(names, ",")
		}

	case OpCopy:
		var r row.Row
		r, err = h.eng.CopyRow(ctx, h.names.resolve(step.Row))
		switch {
		case err != nil:
		case r.ID == "":
			ev.Row = step.Row
			ev.Outcome = "noop"
		default:
			if step.As != "" {
				h.names.bind(step.As, r.ID)
			}
			ev.Row = h.names.name(r.ID)
		}

	case OpEdit:
		ev.Row = step.Row
		var out engine.EditOutcome
		out, err = h.eng.Edit(ctx, h.names.resolve(step.Row), step.Field, step.Value)
		switch {
		case err != nil:
		case out.Err != nil:
			err = out.Err
			ev.State = out.State.String()
		case !out.Applied && out.Row.ID == "":
			ev.Outcome = "noop"
		default:
			ev.State = out.State.String()
		}

	case OpDelete:
		ev.Row = step.Row
		var removed bool
		removed, err = h.eng.DeleteRow(ctx, h.names.resolve(step.Row))
		if err == nil && !removed {
			ev.Outcome = "noop"
		}

	case OpClearError:
		ev.Row = step.Row
		err = h.eng.ClearError(ctx, h.names.resolve(step.Row), step.Field)

	case OpMove:
		ev.Row = step.Row
		var moved bool
		moved, err = h.eng.MoveRow(ctx, h.names.resolve(step.Row), step.Index)
		if err == nil && !moved {
			ev.Outcome = "noop"
		}

	case OpClearAndSet:
		_, err = h.eng.ClearAndSet(ctx, step.Rows, step.Default)

	case OpSort:
		err = h.eng.Sort(ctx, step.Field, step.Asc)

	case OpFlush:
		ev.Row = step.Row
		oldID := h.names.resolve(step.Row)
		var saved row.Row
		saved, err = h.eng.Flush(ctx, oldID)
		switch {
		case err != nil:
		case saved.ID == "":
			ev.Outcome = "noop"
		default:
			h.names.rename(oldID, saved.ID)
		}

	case OpLoad:
		_, err = h.eng.Load(ctx, 1)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if err != nil {
		if engine.IsStopped(err) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		ev.Outcome = outcomeCode(err)
	}
	result.Trace = append(result.Trace, ev)

	if want := cmp.Or(step.Expect, "ok"); ev.Outcome != want && !(want == "ok" && ev.Outcome == "noop") {
		result.AddError(fmt.Sprintf("steps[%d] %s: outcome %s, want %s", n, step.Op, ev.Outcome, want))
	}

	return h.eng.Settle(ctx)
}

func outcomeCode(err error) string {
	var ee *engine.Error
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	return "error"
}

// snapshot captures the final rows and cell errors under scenario names.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	rows, err := h.eng.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	for _, r := range rows {
		result.Rows = append(result.Rows, RowSnapshot{ID: h.names.name(r.ID), Values: r.Values})
	}

	cellErrs, err := h.eng.Errors(ctx)
	if err != nil {
		return fmt.Errorf("failed to read errors: %w", err)
	}
	for _, e := range cellErrs {
		result.Cells = append(result.Cells, CellError{Row: h.names.name(e.RowID), Field: e.FieldID, Code: string(e.Code)})
	}
	slices.SortFunc(result.Cells, func(a, b CellError) int {
		if c := strings.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return strings.Compare(a.Field, b.Field)
	})
	return nil
}

// namer maps scenario row names to engine row ids and back. Rows without
// a name show their client id; saved rows without one show "saved-N".
type namer struct {
	ids   map[string]string // name -> id
	names map[string]string // id -> name
	saved int
}

func newNamer() *namer {
	return &namer{ids: map[string]string{}, names: map[string]string{}}
}

func (n *namer) bind(name, id string) {
	n.ids[name] = id
	n.names[id] = name
}

// resolve returns the id bound to ref, or ref itself.
func (n *namer) resolve(ref string) string {
	if id, ok := n.ids[ref]; ok {
		return id
	}
	return ref
}

// rename moves the name of oldID to newID. An unnamed row is named after
// its client id.
func (n *namer) rename(oldID, newID string) {
	if oldID == newID {
		return
	}
	name, ok := n.names[oldID]
	if !ok {
		name = oldID
	}
	delete(n.names, oldID)
	n.bind(name, newID)
}

func (n *namer) name(id string) string {
	if name, ok := n.names[id]; ok {
		return name
	}
	if row.IsClientID(id) {
		return id
	}
	n.saved++
	name := fmt.Sprintf("saved-%d", n.saved)
	n.bind(name, id)
	return name
}
