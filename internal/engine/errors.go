package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeValidation marks a field-level rule failure (required, unique).
	// Shown inline; never blocks other fields.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeTransientFetch marks a failed row load or async recompute.
	// Not retried; the user re-triggers.
	ErrCodeTransientFetch ErrorCode = "TRANSIENT_FETCH"

	// ErrCodeStaleReference marks an async result for a row that is gone.
	// Logged at debug level only, never returned to callers.
	ErrCodeStaleReference ErrorCode = "STALE_REFERENCE"

	// ErrCodeReadOnly marks a write to a row or field the user cannot edit.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeMaxRows marks an insert past the table's row limit.
	ErrCodeMaxRows ErrorCode = "MAX_ROWS"

	// ErrCodeExportFailed is the generic export failure shown to users.
	ErrCodeExportFailed ErrorCode = "EXPORT_FAILED"

	// ErrCodeUnknownField marks an intent naming a field outside the set.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeStopped is returned for intents submitted after Stop.
	ErrCodeStopped ErrorCode = "STOPPED"
)

// Error is a coordinator error scoped to a row and optionally a field.
type Error struct {
	Code    ErrorCode
	Message string
	RowID   string
	FieldID string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var s string
	switch {
	case e.RowID != "" && e.FieldID != "":
		s = fmt.Sprintf("%s: %s (row=%s, field=%s)", e.Code, e.Message, e.RowID, e.FieldID)
	case e.RowID != "":
		s = fmt.Sprintf("%s: %s (row=%s)", e.Code, e.Message, e.RowID)
	default:
		s = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Key is the side-map key for a cell error: "<rowID>-<fieldID>".
func (e *Error) Key() string { return CellKey(e.RowID, e.FieldID) }

// CellKey builds the error key of a cell.
func CellKey(rowID, fieldID string) string { return rowID + "-" + fieldID }

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidationError reports whether err is a field validation failure.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsTransientError reports whether err is a failed fetch or recompute.
func IsTransientError(err error) bool { return hasCode(err, ErrCodeTransientFetch) }

// IsStaleReference reports whether err refers to a deleted row.
func IsStaleReference(err error) bool { return hasCode(err, ErrCodeStaleReference) }

// IsReadOnly reports whether err rejected a write to a read-only cell.
func IsReadOnly(err error) bool { return hasCode(err, ErrCodeReadOnly) }

// IsMaxRows reports whether err rejected an insert past the row limit.
func IsMaxRows(err error) bool { return hasCode(err, ErrCodeMaxRows) }

// IsExportFailed reports whether err is the generic export failure.
func IsExportFailed(err error) bool { return hasCode(err, ErrCodeExportFailed) }

// IsUnknownField reports whether err named a field outside the set.
func IsUnknownField(err error) bool { return hasCode(err, ErrCodeUnknownField) }

// IsStopped reports whether err came from a stopped engine.
func IsStopped(err error) bool { return hasCode(err, ErrCodeStopped) }

// NewValidationError creates an Error for a failed field rule.
func NewValidationError(rowID, fieldID, msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg, RowID: rowID, FieldID: fieldID}
}

// NewTransientError wraps a failed load or async recompute.
func NewTransientError(rowID, fieldID string, err error) *Error {
	return &Error{Code: ErrCodeTransientFetch, Message: "fetch failed", RowID: rowID, FieldID: fieldID, Err: err}
}

// NewMaxRowsError creates an Error for a rejected insert.
func NewMaxRowsError(have, adding, limit int) *Error {
	return &Error{
		Code:    ErrCodeMaxRows,
		Message: fmt.Sprintf("cannot add %d row(s): %d of %d used", adding, have, limit),
	}
}

var errStopped = &Error{Code: ErrCodeStopped, Message: "engine stopped"}
