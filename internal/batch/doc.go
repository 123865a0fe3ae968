// Package batch implements the drying-batch lifecycle for the dryer terminal.
//
// A batch is one drying run on one physical dryer. It moves through
//
//	loading → drying → unloading → completed | cancelled
//
// where completed and cancelled are terminal. The package provides:
//   - Validator: numeric and temporal checks on new batches and readings
//   - Lifecycle: the state machine, gated by operator permissions
//   - CodeGenerator: sequential D{n}-{YYYYMMDD}-{seq} batch codes
//   - SQLiteStore: persistence for batches and readings
//
// Edit history and delete behaviour are strategies chosen when the
// Lifecycle is constructed (HistoryRecorder, Deleter).
//
// Dryer-busy rule: at most one non-deleted batch in an active status may
// exist per dryer. The lifecycle checks it before inserting and the
// schema rejects a violating insert as a second line.
package batch
