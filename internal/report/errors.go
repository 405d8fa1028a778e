package report

import "errors"

// ErrIllegalTransition indicates a status change the state machine forbids,
// most importantly any attempt to leave a terminal state.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")
