// Package engine coordinates edits of one sub-table.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every intent (cell edit, row add, delete, load, async result) is queued
// and applied by Engine.Run in FIFO order. Public methods block until the
// loop answers, so the rows a caller reads back always reflect the intents
// it submitted before.
//
// Edit Flow:
//  1. Edit stamps the cell with Clock.Next() and records a PendingEdit (Issued).
//  2. recalc.Recompute derives sync fields inline and lists async fields.
//  3. The row is stored; field rules run (Validating).
//  4. A failing rule leaves the value visible and records an error under
//     "<rowID>-<fieldID>" (Rejected). Otherwise the edit is Committed once
//     its async dependents have landed.
//  5. Async dependents are resolved on worker goroutines and come back as
//     events carrying the stamp they were issued with.
//
// ORDERING:
// An async result is applied only if its row still exists and its stamp is
// the latest one issued for that cell. A late result for an older edit is
// dropped, so the most recently issued edit wins regardless of which
// resolver call finishes first. Results for deleted rows are logged at
// debug level and discarded; in-flight work is never cancelled per row.
//
// SHUTDOWN:
// Run cancels the workers' context and waits for them before returning.
// Intents still queued are answered with a STOPPED error.
package engine
