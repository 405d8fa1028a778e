// Package ledger is the durable, atomic store of credit balances and the
// append-only transaction log. Every balance change happens inside a single
// database transaction together with its log entry, keyed by the report it
// relates to: one usage per debit, one refund per compensation. Re-running
// either operation with the same reference is a no-op, which is what lets the
// orchestrator and the compensation saga retry safely.
package ledger
