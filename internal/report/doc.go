// Package report owns the report lifecycle: the SQLite-backed store, the
// status state machine, and the uploaded-asset records bound to each report.
// Status transitions are guarded at the database level so a terminal report
// can never re-enter processing, even when two workers race.
package report
