package engine

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/recalc"
	"github.com/roach88/subsheet/internal/row"
)

// EditState is the lifecycle of a PendingEdit:
// Issued → Validating → Committed | Rejected.
type EditState int

const (
	EditIssued EditState = iota
	EditValidating
	EditCommitted
	EditRejected
)

func (s EditState) String() string {
	switch s {
	case EditIssued:
		return "issued"
	case EditValidating:
		return "validating"
	case EditCommitted:
		return "committed"
	case EditRejected:
		return "rejected"
	}
	return "unknown"
}

// PendingEdit is a user edit of one cell that is not settled yet: it is
// waiting on async dependents, or it was rejected and still shows its error.
type PendingEdit struct {
	RowID    string
	FieldID  string
	Value    any
	Seq      int64
	State    EditState
	Err      *Error
	Awaiting []string

	awaiting map[string]bool
}

// EditOutcome reports what an Edit did.
type EditOutcome struct {
	// Applied is false when the row no longer exists or the value was
	// already stored.
	Applied bool
	State   EditState
	Row     row.Row
	Async   []string

	// Err is the validation failure of a rejected edit. The value is kept.
	Err *Error
}

// handleEdit commits a user edit. Called only from Run.
func (e *Engine) handleEdit(in editIntent) (EditOutcome, error) {
	in.rowID = e.alias(in.rowID)
	r, ok := e.store.Get(in.rowID)
	if !ok {
		slog.Debug("edit ignored: row gone", "row_id", in.rowID, "field_id", in.fieldID)
		return EditOutcome{}, nil
	}
	def, ok := e.fields.Get(in.fieldID)
	if !ok {
		return EditOutcome{}, &Error{Code: ErrCodeUnknownField, Message: "no such field", RowID: in.rowID, FieldID: in.fieldID}
	}
	if err := e.checkWritable(r, def); err != nil {
		return EditOutcome{}, err
	}

	c := cell{row: in.rowID, field: in.fieldID}
	key := CellKey(in.rowID, in.fieldID)
	if cur, has := r.Values[in.fieldID]; has && e.pending[c] == nil && e.errs[key] == nil && cmp.Equal(cur, in.value) {
		return EditOutcome{State: EditCommitted, Row: r}, nil
	}

	seq := e.clock.Next()
	e.stamps.issue(c, seq)
	e.lastEdit[in.rowID] = seq
	pe := &PendingEdit{RowID: in.rowID, FieldID: in.fieldID, Value: in.value, Seq: seq, State: EditIssued}
	e.pending[c] = pe

	res, err := recalc.Recompute(r, in.fieldID, in.value, e.fields, e.env)
	if err != nil {
		delete(e.pending, c)
		return EditOutcome{}, &Error{Code: ErrCodeUnknownField, Message: "recompute failed", RowID: in.rowID, FieldID: in.fieldID, Err: err}
	}

	pe.State = EditValidating
	next := res.Row
	next.IsEdited = true
	e.store.Put(next)

	if verr := e.validate(def, next); verr != nil {
		pe.State = EditRejected
		pe.Err = verr
		e.errs[key] = verr
		slog.Debug("edit rejected", "row_id", in.rowID, "field_id", in.fieldID, "seq", seq, "error", verr)
	} else {
		delete(e.errs, key)
	}

	if len(res.Async) > 0 {
		pe.awaiting = make(map[string]bool, len(res.Async))
		for _, id := range res.Async {
			pe.awaiting[id] = true
		}
		e.issueAsync(next, res.Async, seq)
	}
	if pe.State == EditValidating && len(pe.awaiting) == 0 {
		pe.State = EditCommitted
		delete(e.pending, c)
	}

	slog.Debug("edit applied", "row_id", in.rowID, "field_id", in.fieldID, "seq", seq, "state", pe.State.String(), "async", res.Async)
	return EditOutcome{Applied: true, State: pe.State, Row: next, Async: res.Async, Err: pe.Err}, nil
}

func (e *Engine) checkWritable(r row.Row, def field.Definition) *Error {
	switch {
	case !r.AllowEdit:
		return &Error{Code: ErrCodeReadOnly, Message: "row is read-only", RowID: r.ID, FieldID: def.ID}
	case !def.Editable():
		return &Error{Code: ErrCodeReadOnly, Message: "field is not editable", RowID: r.ID, FieldID: def.ID}
	case !e.settings.AllowEdit && !row.IsClientID(r.ID):
		return &Error{Code: ErrCodeReadOnly, Message: "editing saved rows is disabled", RowID: r.ID, FieldID: def.ID}
	}
	return nil
}

// validate checks the field rules of def against r.
func (e *Engine) validate(def field.Definition, r row.Row) *Error {
	v := r.Values[def.ID]
	if def.Required && row.IsEmpty(v) {
		return NewValidationError(r.ID, def.ID, "value is required")
	}
	if def.Unique && !e.isUnique(def.ID, v, r.ID) {
		return NewValidationError(r.ID, def.ID, "value must be unique")
	}
	return nil
}

// isUnique reports whether no row other than excludeRowID holds value in
// fieldID. Text is compared trimmed and NFC-normalized. Empty values are
// always unique. O(rows).
func (e *Engine) isUnique(fieldID string, value any, excludeRowID string) bool {
	if row.IsEmpty(value) {
		return true
	}
	want := uniqueKey(value)
	_, taken := e.store.Find(func(r row.Row) bool {
		v, ok := r.Values[fieldID]
		return ok && r.ID != excludeRowID && !row.IsEmpty(v) && uniqueKey(v) == want
	})
	return !taken
}

func uniqueKey(v any) string {
	return norm.NFC.String(strings.TrimSpace(row.Text(v)))
}

// issueAsync stamps each (row, field) with seq and resolves them on a worker
// goroutine. Results come back as asyncResult events.
func (e *Engine) issueAsync(r row.Row, ids []string, seq int64) {
	fields, env, ctx := e.fields, e.env, e.workCtx
	for _, id := range ids {
		e.stamps.issue(cell{row: r.ID, field: id}, seq)
	}
	e.inflight += len(ids)
	e.busy[r.ID] += len(ids)
	slog.Debug("async issued", "row_id", r.ID, "fields", ids, "seq", seq)

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		var g errgroup.Group
		g.SetLimit(e.asyncLimit)
		for _, id := range ids {
			def, _ := fields.Get(id)
			g.Go(func() error {
				v, err := e.resolver.Resolve(ctx, recalc.Request{Row: r, Field: def, Fields: fields, Env: env})
				e.queue.Enqueue(Event{Intent: asyncResult{rowID: r.ID, fieldID: id, seq: seq, value: v, err: err}})
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// handleAsyncResult applies a resolved field if it is still wanted.
func (e *Engine) handleAsyncResult(in asyncResult) {
	e.inflight--
	defer e.maybeSettle()

	rowID := e.alias(in.rowID)
	if n := e.busy[rowID]; n > 1 {
		e.busy[rowID] = n - 1
	} else {
		delete(e.busy, rowID)
	}
	r, ok := e.store.Get(rowID)
	if !ok {
		stale := &Error{Code: ErrCodeStaleReference, Message: "async result for missing row", RowID: in.rowID, FieldID: in.fieldID}
		slog.Debug("async result dropped", "seq", in.seq, "error", stale)
		return
	}
	e.resolveAwaiting(rowID, in.fieldID, in.seq)

	c := cell{row: rowID, field: in.fieldID}
	if !e.stamps.current(c, in.seq) {
		slog.Debug("async result superseded", "row_id", rowID, "field_id", in.fieldID, "seq", in.seq)
		return
	}

	key := CellKey(rowID, in.fieldID)
	if in.err != nil {
		if e.workCtx.Err() != nil {
			return
		}
		e.errs[key] = NewTransientError(rowID, in.fieldID, in.err)
		slog.Warn("async recompute failed", "row_id", rowID, "field_id", in.fieldID, "seq", in.seq, "error", in.err)
		return
	}

	res := recalc.Apply(r, in.fieldID, in.value, e.fields, e.env)
	e.store.Put(res.Row)
	if old := e.errs[key]; old != nil && old.Code == ErrCodeTransientFetch {
		delete(e.errs, key)
	}
	slog.Debug("async result applied", "row_id", rowID, "field_id", in.fieldID, "seq", in.seq)

	if len(res.Async) > 0 {
		e.issueAsync(res.Row, res.Async, e.clock.Next())
	}
}

// resolveAwaiting marks fieldID as arrived for the edit stamped seq, and
// commits that edit once nothing else is outstanding.
func (e *Engine) resolveAwaiting(rowID, fieldID string, seq int64) {
	for c, pe := range e.pending {
		if pe.RowID != rowID || pe.Seq != seq {
			continue
		}
		delete(pe.awaiting, fieldID)
		if len(pe.awaiting) == 0 && pe.State == EditValidating {
			pe.State = EditCommitted
			delete(e.pending, c)
		}
	}
}

func (e *Engine) alias(rowID string) string {
	if to, ok := e.renamed[rowID]; ok {
		return to
	}
	return rowID
}

func (e *Engine) handleSettle(ev Event) {
	if e.inflight == 0 {
		ev.respond(nil, nil)
		return
	}
	e.settlers = append(e.settlers, ev)
}

func (e *Engine) maybeSettle() {
	if e.inflight > 0 {
		return
	}
	for _, ev := range e.settlers {
		ev.respond(nil, nil)
	}
	e.settlers = nil
}

func (e *Engine) handleErrors() map[string]*Error {
	return maps.Clone(e.errs)
}

func (e *Engine) handleClearError(in clearErrorIntent) {
	rowID := e.alias(in.rowID)
	delete(e.errs, CellKey(rowID, in.fieldID))
	c := cell{row: rowID, field: in.fieldID}
	if pe := e.pending[c]; pe != nil && pe.State == EditRejected {
		delete(e.pending, c)
	}
}

func (e *Engine) handlePending() []PendingEdit {
	out := make([]PendingEdit, 0, len(e.pending))
	for _, pe := range e.pending {
		cp := *pe
		cp.awaiting = nil
		cp.Awaiting = slices.Sorted(maps.Keys(pe.awaiting))
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b PendingEdit) int { return int(a.Seq - b.Seq) })
	return out
}

// handleCached returns the values of a row's edits that are not settled.
func (e *Engine) handleCached(rowID string) map[string]any {
	out := make(map[string]any)
	for _, pe := range e.pending {
		if pe.RowID == rowID {
			out[pe.FieldID] = pe.Value
		}
	}
	return out
}

// forgetRow drops every piece of per-row state for rowID.
func (e *Engine) forgetRow(rowID string) {
	e.stamps.dropRow(rowID)
	for c := range e.pending {
		if c.row == rowID {
			delete(e.pending, c)
		}
	}
	for k, err := range e.errs {
		if err.RowID == rowID {
			delete(e.errs, k)
		}
	}
	delete(e.lastEdit, rowID)
	delete(e.busy, rowID)
	for from, to := range e.renamed {
		if to == rowID || from == rowID {
			delete(e.renamed, from)
		}
	}
}

// Edit sets one cell of a row: the commit operation of the coordinator.
//
// A row that no longer exists yields a zero outcome and no error. Writes to
// read-only rows or fields fail with READ_ONLY. A value failing validation
// is still stored; the outcome is Rejected and the error is kept under
// CellKey(rowID, fieldID) until the cell is edited again or ClearError.
func (e *Engine) Edit(ctx context.Context, rowID, fieldID string, value any) (EditOutcome, error) {
	return call[EditOutcome](ctx, e, editIntent{rowID: rowID, fieldID: fieldID, value: value})
}

// IsUnique reports whether no row other than excludeRowID holds value in fieldID.
func (e *Engine) IsUnique(ctx context.Context, fieldID string, value any, excludeRowID string) (bool, error) {
	return call[bool](ctx, e, uniqueIntent{fieldID: fieldID, value: value, excludeRowID: excludeRowID})
}

// Errors returns the cell errors keyed by CellKey.
func (e *Engine) Errors(ctx context.Context) (map[string]*Error, error) {
	return call[map[string]*Error](ctx, e, errorsIntent{})
}

// ClearError dismisses the error of a cell.
func (e *Engine) ClearError(ctx context.Context, rowID, fieldID string) error {
	_, err := e.submit(ctx, clearErrorIntent{rowID: rowID, fieldID: fieldID})
	return err
}

// Pending returns the unsettled edits in issue order.
func (e *Engine) Pending(ctx context.Context) ([]PendingEdit, error) {
	return call[[]PendingEdit](ctx, e, pendingIntent{})
}

// Cached returns the values of rowID's unsettled edits by field id.
func (e *Engine) Cached(ctx context.Context, rowID string) (map[string]any, error) {
	return call[map[string]any](ctx, e, cachedIntent{rowID: rowID})
}

// Settle blocks until no async recompute is in flight.
func (e *Engine) Settle(ctx context.Context) error {
	_, err := e.submit(ctx, settleIntent{})
	return err
}
