package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/subsheet/internal/factory"
	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

func (e *Engine) checkCapacity(adding int) *Error {
	if have := e.store.Len(); have+adding > e.maxRows {
		return NewMaxRowsError(have, adding, e.maxRows)
	}
	return nil
}

func (e *Engine) checkAddable() *Error {
	if !e.settings.AllowAdd {
		return &Error{Code: ErrCodeReadOnly, Message: "adding rows is disabled"}
	}
	return nil
}

// insertCreated stores a factory row and issues its async fields.
func (e *Engine) insertCreated(c factory.Created, after string) row.Row {
	if !e.store.Insert(c.Row, after) {
		return row.Row{}
	}
	stored, _ := e.store.Get(c.Row.ID)
	if len(c.Async) > 0 {
		e.issueAsync(stored, c.Async, e.clock.Next())
	}
	return stored
}

func (e *Engine) handleAdd(in addIntent) (row.Row, error) {
	if err := e.checkAddable(); err != nil {
		return row.Row{}, err
	}
	if err := e.checkCapacity(1); err != nil {
		return row.Row{}, err
	}
	c := e.factory.Create(e.fields, in.defaults, factory.Options{IsCreate: true}, e.env)
	return e.insertCreated(c, in.after), nil
}

func (e *Engine) handleCopy(in copyIntent) (row.Row, error) {
	rowID := e.alias(in.rowID)
	src, ok := e.store.Get(rowID)
	if !ok {
		return row.Row{}, nil
	}
	if err := e.checkAddable(); err != nil {
		return row.Row{}, err
	}
	if err := e.checkCapacity(1); err != nil {
		return row.Row{}, err
	}
	cp := e.factory.Copy(e.fields, src)
	e.store.Insert(cp, rowID)
	stored, _ := e.store.Get(cp.ID)
	return stored, nil
}

func (e *Engine) handleRecords(in recordsIntent) ([]row.Row, error) {
	if err := e.checkAddable(); err != nil {
		return nil, err
	}
	created, err := e.factory.FromRecords(e.fields, in.relationID, in.records, e.env)
	if err != nil {
		return nil, &Error{Code: ErrCodeUnknownField, Message: "cannot add from records", FieldID: in.relationID, Err: err}
	}
	if err := e.checkCapacity(len(created)); err != nil {
		return nil, err
	}

	out := make([]row.Row, 0, len(created))
	after := in.after
	for _, c := range created {
		r := e.insertCreated(c, after)
		if after != "" {
			after = r.ID
		}
		out = append(out, r)
	}
	return out, nil
}

// handleClearAndSet rebuilds every row from a default-value push. Rows past
// the limit are dropped with a warning.
func (e *Engine) handleClearAndSet(in clearSetIntent) ([]string, error) {
	values := in.values
	if len(values) > e.maxRows {
		slog.Warn("default rows truncated", "ref", e.ref.String(), "rows", len(values), "max_rows", e.maxRows)
		values = values[:e.maxRows]
	}

	created := make([]factory.Created, 0, len(values))
	rows := make([]row.Row, 0, len(values))
	for _, v := range values {
		c := e.factory.Create(e.fields, v, factory.Options{IsCreate: true, IsDefaultValue: in.isDefault}, e.env)
		created = append(created, c)
		rows = append(rows, c.Row)
	}

	removed := e.store.ReplaceAll(rows)
	for _, id := range removed {
		e.forgetRow(id)
	}
	e.store.SortRules(e.fields, e.settings.Sorts, e.env.Locale)

	for _, c := range created {
		if len(c.Async) == 0 {
			continue
		}
		stored, ok := e.store.Get(c.Row.ID)
		if ok {
			e.issueAsync(stored, c.Async, e.clock.Next())
		}
	}
	return removed, nil
}

// normalize drops values of unknown fields.
func (e *Engine) normalize(rows []row.Row) []row.Row {
	out := make([]row.Row, len(rows))
	for i, r := range rows {
		r = r.Clone()
		r.Values = e.fields.Filter(r.Values)
		out[i] = r
	}
	return out
}

func (e *Engine) handleAppend(in appendIntent) int {
	return e.store.InsertMany(e.normalize(in.rows))
}

// handleLoaded applies a fetched page. The first page replaces everything,
// including pending edits and errors. Later pages are merged in and the
// table sort rules applied again, so the order does not depend on paging.
func (e *Engine) handleLoaded(in loadedIntent) int {
	rows := e.normalize(in.rows)
	if in.page > 1 {
		n := e.store.InsertMany(rows)
		if n > 0 {
			e.store.SortRules(e.fields, e.settings.Sorts, e.env.Locale)
		}
		return n
	}
	e.stamps = stamps{}
	clear(e.pending)
	clear(e.errs)
	clear(e.lastEdit)
	clear(e.renamed)
	clear(e.busy)
	e.store.Load(rows)
	e.store.SortRules(e.fields, e.settings.Sorts, e.env.Locale)
	return e.store.Len()
}

// handleDelete removes a row and returns the id it was stored under, which
// differs from in.rowID once a client row was saved. An empty id means
// nothing was removed.
func (e *Engine) handleDelete(in deleteIntent) (string, error) {
	rowID := e.alias(in.rowID)
	if !e.store.Has(rowID) {
		return "", nil
	}
	if !row.IsClientID(rowID) && !e.settings.AllowCancel {
		return "", &Error{Code: ErrCodeReadOnly, Message: "deleting saved rows is disabled", RowID: rowID}
	}
	e.store.Remove(rowID)
	e.forgetRow(rowID)
	return rowID, nil
}

// handleMove reports whether the display order changed.
func (e *Engine) handleMove(in moveIntent) bool {
	before := e.store.Version()
	e.store.Move(e.alias(in.rowID), in.index)
	return e.store.Version() != before
}

func (e *Engine) handleSort(in sortIntent) error {
	def, ok := e.fields.Get(in.fieldID)
	if !ok {
		return &Error{Code: ErrCodeUnknownField, Message: "cannot sort", FieldID: in.fieldID}
	}
	e.store.SortByField(def, in.asc, e.env.Locale)
	return nil
}

func (e *Engine) handleReset() []string {
	removed := e.store.Reset()
	e.stamps = stamps{}
	clear(e.pending)
	clear(e.errs)
	clear(e.lastEdit)
	clear(e.busy)
	return removed
}

// handleFields installs a new field set and drops row values, edits and
// errors of fields that no longer exist.
func (e *Engine) handleFields(set field.Set) {
	e.fields = set
	for _, r := range e.store.Rows() {
		filtered := set.Filter(r.Values)
		if len(filtered) == len(r.Values) {
			continue
		}
		r.Values = filtered
		e.store.Put(r)
	}
	for c := range e.stamps {
		if !set.Has(c.field) {
			delete(e.stamps, c)
		}
	}
	for c := range e.pending {
		if !set.Has(c.field) {
			delete(e.pending, c)
		}
	}
	for k, err := range e.errs {
		if err.FieldID != "" && !set.Has(err.FieldID) {
			delete(e.errs, k)
		}
	}
	slog.Info("fields replaced", "ref", e.ref.String(), "fields", set.Len(), "cycles", len(set.Warnings()))
}

func (e *Engine) handleAddOption(in optionIntent) error {
	def, ok := e.fields.Get(in.fieldID)
	if !ok {
		return &Error{Code: ErrCodeUnknownField, Message: "cannot add option", FieldID: in.fieldID}
	}
	if _, isSelect := def.Config.(field.SelectConfig); !isSelect {
		return &Error{Code: ErrCodeValidation, Message: "field has no options", FieldID: in.fieldID}
	}
	next, err := e.fields.Replace(field.WithOption(def, in.option))
	if err != nil {
		return &Error{Code: ErrCodeUnknownField, Message: "cannot add option", FieldID: in.fieldID, Err: err}
	}
	e.fields = next
	return nil
}

type flushSnapshot struct {
	row row.Row
	seq int64
}

// handleFlush checks a row is ready to save and snapshots it.
func (e *Engine) handleFlush(in flushIntent) (flushSnapshot, error) {
	rowID := e.alias(in.rowID)
	r, ok := e.store.Get(rowID)
	if !ok {
		return flushSnapshot{}, nil
	}

	var first *Error
	for _, def := range e.fields.All() {
		if !def.Required || def.Computed() || !def.Permission.Visible() {
			continue
		}
		if row.IsEmpty(r.Values[def.ID]) {
			verr := NewValidationError(rowID, def.ID, "value is required")
			e.errs[verr.Key()] = verr
		}
	}
	for _, id := range e.fields.IDs() {
		if err := e.errs[CellKey(rowID, id)]; err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return flushSnapshot{}, &Error{Code: ErrCodeValidation, Message: "row has unresolved errors", RowID: rowID, FieldID: first.FieldID, Err: first}
	}
	return flushSnapshot{row: r, seq: e.lastEdit[rowID]}, nil
}

// handleSaved swaps a saved row in under its server id. Edits made while
// the save was in flight are kept; server-only values fill the gaps.
func (e *Engine) handleSaved(in savedIntent) row.Row {
	cur, ok := e.store.Get(in.oldID)
	if !ok {
		slog.Debug("saved row no longer present", "row_id", in.oldID, "saved_id", in.saved.ID)
		return row.Row{}
	}

	merged := cur.Clone()
	merged.ID = in.saved.ID
	for k, v := range in.saved.Values {
		if _, has := merged.Values[k]; !has && e.fields.Has(k) {
			merged.Values[k] = v
		}
	}
	if e.lastEdit[in.oldID] == in.seq {
		merged.IsEdited = false
		merged.IsCopy = false
		merged.UpdatedFieldIDs = nil
	}
	if !e.store.ReplaceID(in.oldID, merged) {
		slog.Warn("saved id collides with another row", "row_id", in.oldID, "saved_id", in.saved.ID)
		return cur
	}

	if in.oldID != merged.ID {
		e.rename(in.oldID, merged.ID)
	}
	out, _ := e.store.Get(merged.ID)
	return out
}

func (e *Engine) rename(from, to string) {
	e.stamps.renameRow(from, to)
	for c, pe := range e.pending {
		if c.row == from {
			delete(e.pending, c)
			pe.RowID = to
			e.pending[cell{row: to, field: c.field}] = pe
		}
	}
	for k, err := range e.errs {
		if err.RowID == from {
			delete(e.errs, k)
			err.RowID = to
			e.errs[err.Key()] = err
		}
	}
	if seq, ok := e.lastEdit[from]; ok {
		delete(e.lastEdit, from)
		e.lastEdit[to] = seq
	}
	if n, ok := e.busy[from]; ok {
		delete(e.busy, from)
		e.busy[to] = n
	}
	for k, v := range e.renamed {
		if v == from {
			e.renamed[k] = to
		}
	}
	e.renamed[from] = to
}

type exportSnapshot struct {
	fields field.Set
	rows   []row.Row
}

func (e *Engine) handleExport() (exportSnapshot, error) {
	if !e.settings.AllowExport {
		return exportSnapshot{}, &Error{Code: ErrCodeReadOnly, Message: "export is disabled"}
	}
	return exportSnapshot{fields: e.fields, rows: e.store.Rows()}, nil
}

// Load fetches a page of rows and applies it. Page 1 (or below) replaces
// the collection and becomes the Reset target; later pages append.
// A failed fetch is a TRANSIENT_FETCH error and is not retried.
func (e *Engine) Load(ctx context.Context, page int) (int, error) {
	if e.persist == nil {
		return 0, errors.New("load: no persistence configured")
	}
	rows, err := e.persist.FetchRows(ctx, e.ref, page)
	if err != nil {
		terr := &Error{Code: ErrCodeTransientFetch, Message: "load rows failed", Err: err}
		slog.Warn("load failed", "ref", e.ref.String(), "page", page, "error", err)
		return 0, terr
	}
	return call[int](ctx, e, loadedIntent{page: page, rows: rows})
}

// AddRow inserts a new temp row after afterRowID, or at the end.
func (e *Engine) AddRow(ctx context.Context, defaults map[string]any, afterRowID string) (row.Row, error) {
	return call[row.Row](ctx, e, addIntent{defaults: defaults, after: afterRowID})
}

// CopyRow inserts a copy of rowID right after it. A missing source yields
// a zero row and no error.
func (e *Engine) CopyRow(ctx context.Context, rowID string) (row.Row, error) {
	return call[row.Row](ctx, e, copyIntent{rowID: rowID})
}

// AddFromRecords inserts one row per record picked through relationID.
// The batch is rejected whole if it would pass the row limit.
func (e *Engine) AddFromRecords(ctx context.Context, relationID string, records []factory.Record, afterRowID string) ([]row.Row, error) {
	return call[[]row.Row](ctx, e, recordsIntent{relationID: relationID, records: records, after: afterRowID})
}

// ClearAndSet replaces every row with rows built from values, sorted by the
// table's sort rules, and returns the ids that were removed.
func (e *Engine) ClearAndSet(ctx context.Context, values []map[string]any, isDefault bool) ([]string, error) {
	return call[[]string](ctx, e, clearSetIntent{values: values, isDefault: isDefault})
}

// Append adds already-built rows at the end and returns how many were new.
func (e *Engine) Append(ctx context.Context, rows []row.Row) (int, error) {
	return call[int](ctx, e, appendIntent{rows: rows})
}

// DeleteRow removes a row. Async work in flight for it is discarded when it
// lands. Saved rows are also deleted through the persistence API; a failure
// there is a TRANSIENT_FETCH error and the row stays removed locally.
func (e *Engine) DeleteRow(ctx context.Context, rowID string) (bool, error) {
	storedID, err := call[string](ctx, e, deleteIntent{rowID: rowID})
	if err != nil || storedID == "" {
		return false, err
	}
	if row.IsClientID(storedID) || e.persist == nil {
		return true, nil
	}
	if err := e.persist.DeleteRow(ctx, e.ref, storedID); err != nil {
		slog.Warn("delete failed", "ref", e.ref.String(), "row_id", storedID, "error", err)
		return true, &Error{Code: ErrCodeTransientFetch, Message: "delete failed", RowID: storedID, Err: err}
	}
	return true, nil
}

// MoveRow places a row at index in display order, clamped to the table.
// It reports false when the row is missing or already there.
func (e *Engine) MoveRow(ctx context.Context, rowID string, index int) (bool, error) {
	return call[bool](ctx, e, moveIntent{rowID: rowID, index: index})
}

// Sort orders the rows by one field.
func (e *Engine) Sort(ctx context.Context, fieldID string, asc bool) error {
	_, err := e.submit(ctx, sortIntent{fieldID: fieldID, asc: asc})
	return err
}

// Reset restores the rows of the last page-1 load and returns the ids
// that were dropped.
func (e *Engine) Reset(ctx context.Context) ([]string, error) {
	return call[[]string](ctx, e, resetIntent{})
}

// SetFields replaces the field definitions. Constructions already running
// keep the set they started with.
func (e *Engine) SetFields(ctx context.Context, set field.Set) error {
	_, err := e.submit(ctx, fieldsIntent{set: set})
	return err
}

// AddOption appends a custom option to a select field.
func (e *Engine) AddOption(ctx context.Context, fieldID string, opt field.Option) error {
	_, err := e.submit(ctx, optionIntent{fieldID: fieldID, option: opt})
	return err
}

// Rows returns the rows in display order.
func (e *Engine) Rows(ctx context.Context) ([]row.Row, error) {
	return call[[]row.Row](ctx, e, rowsIntent{})
}

// Row returns one row; ok is false if it does not exist.
func (e *Engine) Row(ctx context.Context, rowID string) (r row.Row, ok bool, err error) {
	r, err = call[row.Row](ctx, e, rowIntent{rowID: rowID})
	return r, r.ID != "", err
}

// Flush saves a finalized row. A client row gets its server id in place.
// While async recomputes for the row are in flight the flush waits for
// them, so the saved values include their results. Rows with unresolved
// cell errors or empty required fields are not saved and fail with
// VALIDATION. A missing row yields a zero row and no error.
func (e *Engine) Flush(ctx context.Context, rowID string) (row.Row, error) {
	if e.persist == nil {
		return row.Row{}, errors.New("flush: no persistence configured")
	}
	snap, err := call[flushSnapshot](ctx, e, flushIntent{rowID: rowID})
	if err != nil || snap.row.ID == "" {
		return row.Row{}, err
	}
	saved, err := e.persist.SaveRow(ctx, e.ref, snap.row)
	if err != nil {
		slog.Warn("save failed", "ref", e.ref.String(), "row_id", snap.row.ID, "error", err)
		return row.Row{}, &Error{Code: ErrCodeTransientFetch, Message: "save failed", RowID: snap.row.ID, Err: err}
	}
	return call[row.Row](ctx, e, savedIntent{oldID: snap.row.ID, saved: saved, seq: snap.seq})
}

// RequestExport writes the current rows through the Exporter. Any failure
// is reported as a generic EXPORT_FAILED error and logged; it is not retried.
func (e *Engine) RequestExport(ctx context.Context, filename string) error {
	snap, err := call[exportSnapshot](ctx, e, exportIntent{})
	if err != nil {
		return err
	}
	failed := &Error{Code: ErrCodeExportFailed, Message: "export failed, please try again later"}
	if e.exporter == nil {
		slog.Error("export failed", "ref", e.ref.String(), "error", "no exporter configured")
		return failed
	}
	if err := e.exporter.Export(ctx, e.ref, snap.fields, snap.rows, filename); err != nil {
		slog.Error("export failed", "ref", e.ref.String(), "filename", filename, "error", err)
		return failed
	}
	slog.Info("export written", "ref", e.ref.String(), "filename", filename, "rows", len(snap.rows))
	return nil
}
