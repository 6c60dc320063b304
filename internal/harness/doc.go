// Package harness runs sub-table scenarios end to end.
//
// A scenario names a table from a CUE schema directory and a list of steps
// that drive a real engine backed by an in-memory SQLite store. Client row
// ids come from a sequence generator, so every run of a scenario produces
// the same trace and final rows, which are compared to a golden snapshot.
//
// # Scenario Format
//
//	name: order_lines
//	description: "Edits recompute totals"
//	schema: schema            # relative to the scenario file
//	table: lines
//	record: order-1
//	records:                  # related records seeded before the steps
//	  - table: products
//	    id: p-1
//	    values: {sku: B-100}
//	steps:
//	  - op: add
//	    as: a
//	    values: {name: bolt, qty: 2}
//	  - op: edit
//	    row: a
//	    field: qty
//	    value: 4
//	  - op: edit
//	    row: a
//	    field: name
//	    value: ""
//	    expect: VALIDATION
//	assertions:
//	  - type: row_values
//	    row: a
//	    expect: {qty: 4}
//
// # Steps
//
//   - add: insert a row from values, after the row named by after
//   - add_records: insert one row per picked record through the relation
//     named by field, binding names to the new rows in order
//   - copy: insert a copy of a row right after it
//   - edit: set one field of a row
//   - clear_error: drop the error left on a cell
//   - delete: remove a row
//   - move: place a row at index
//   - clear_and_set: replace every row with rows built from rows
//   - sort: order rows by field, ascending when asc is set
//   - flush: save a row through the store
//   - load: reload page 1 from the store
//
// A step succeeds unless expect names the engine error code it should
// fail with. Rows are referred to by the name given with as; a flushed row
// keeps its name after it receives its server id.
//
// # Assertion Types
//
//   - row_count: the number of rows
//   - row_values: a subset match on the values of one row
//   - row_order: the named rows appear in this relative order
//   - cell_error: a cell carries an error with the given code
package harness
