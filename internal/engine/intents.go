package engine

import (
	"fmt"

	"github.com/roach88/subsheet/internal/factory"
	"github.com/roach88/subsheet/internal/field"
	"github.com/roach88/subsheet/internal/row"
)

type (
	editIntent struct {
		rowID, fieldID string
		value          any
	}
	asyncResult struct {
		rowID, fieldID string
		seq            int64
		value          any
		err            error
	}
	addIntent struct {
		defaults map[string]any
		after    string
	}
	copyIntent    struct{ rowID string }
	recordsIntent struct {
		relationID string
		records    []factory.Record
		after      string
	}
	clearSetIntent struct {
		values    []map[string]any
		isDefault bool
	}
	appendIntent struct{ rows []row.Row }
	loadedIntent struct {
		page int
		rows []row.Row
	}
	deleteIntent struct{ rowID string }
	moveIntent   struct {
		rowID string
		index int
	}
	sortIntent struct {
		fieldID string
		asc     bool
	}
	resetIntent  struct{}
	fieldsIntent struct{ set field.Set }
	optionIntent struct {
		fieldID string
		option  field.Option
	}
	uniqueIntent struct {
		fieldID, excludeRowID string
		value                 any
	}
	errorsIntent     struct{}
	clearErrorIntent struct{ rowID, fieldID string }
	pendingIntent    struct{}
	cachedIntent     struct{ rowID string }
	rowsIntent       struct{}
	rowIntent        struct{ rowID string }
	settleIntent     struct{}
	flushIntent      struct{ rowID string }
	savedIntent      struct {
		oldID string
		saved row.Row
		seq   int64
	}
	exportIntent struct{}
)

func (editIntent) name() string       { return "edit" }
func (asyncResult) name() string      { return "async_result" }
func (addIntent) name() string        { return "add" }
func (copyIntent) name() string       { return "copy" }
func (recordsIntent) name() string    { return "add_records" }
func (clearSetIntent) name() string   { return "clear_and_set" }
func (appendIntent) name() string     { return "append" }
func (loadedIntent) name() string     { return "loaded" }
func (deleteIntent) name() string     { return "delete" }
func (moveIntent) name() string       { return "move" }
func (sortIntent) name() string       { return "sort" }
func (resetIntent) name() string      { return "reset" }
func (fieldsIntent) name() string     { return "set_fields" }
func (optionIntent) name() string     { return "add_option" }
func (uniqueIntent) name() string     { return "is_unique" }
func (errorsIntent) name() string     { return "errors" }
func (clearErrorIntent) name() string { return "clear_error" }
func (pendingIntent) name() string    { return "pending" }
func (cachedIntent) name() string     { return "cached" }
func (rowsIntent) name() string       { return "rows" }
func (rowIntent) name() string        { return "row" }
func (settleIntent) name() string     { return "settle" }
func (flushIntent) name() string      { return "flush" }
func (savedIntent) name() string      { return "saved" }
func (exportIntent) name() string     { return "export" }

// handle routes an intent to its handler. Called only from Run.
func (e *Engine) handle(in intent) (any, error) {
	switch in := in.(type) {
	case editIntent:
		return e.handleEdit(in)
	case asyncResult:
		e.handleAsyncResult(in)
		return nil, nil
	case addIntent:
		return e.handleAdd(in)
	case copyIntent:
		return e.handleCopy(in)
	case recordsIntent:
		return e.handleRecords(in)
	case clearSetIntent:
		return e.handleClearAndSet(in)
	case appendIntent:
		return e.handleAppend(in), nil
	case loadedIntent:
		return e.handleLoaded(in), nil
	case deleteIntent:
		return e.handleDelete(in)
	case moveIntent:
		return e.handleMove(in), nil
	case sortIntent:
		return nil, e.handleSort(in)
	case resetIntent:
		return e.handleReset(), nil
	case fieldsIntent:
		e.handleFields(in.set)
		return nil, nil
	case optionIntent:
		return nil, e.handleAddOption(in)
	case uniqueIntent:
		return e.isUnique(in.fieldID, in.value, e.alias(in.excludeRowID)), nil
	case errorsIntent:
		return e.handleErrors(), nil
	case clearErrorIntent:
		e.handleClearError(in)
		return nil, nil
	case pendingIntent:
		return e.handlePending(), nil
	case cachedIntent:
		return e.handleCached(e.alias(in.rowID)), nil
	case rowsIntent:
		return e.store.Rows(), nil
	case rowIntent:
		r, _ := e.store.Get(e.alias(in.rowID))
		return r, nil
	case flushIntent:
		return e.handleFlush(in)
	case savedIntent:
		return e.handleSaved(in), nil
	case exportIntent:
		return e.handleExport()
	}
	return nil, fmt.Errorf("unknown intent %q", in.name())
}
