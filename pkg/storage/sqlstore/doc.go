// Package sqlstore implements the ledger and cache stores on database/sql.
//
// The same queries serve SQLite and PostgreSQL. A Dialect supplies the
// schema, placeholder style and contention classifier for each engine.
//
// Credit deduction is a single conditional UPDATE:
//
//	UPDATE usage_records
//	SET credits_used = credits_used + ?
//	WHERE user_id = ? AND period_key = ? AND credits_used + ? <= credits_limit
//	RETURNING ...
//
// No row returned means the condition failed. The transaction log insert
// runs in the same database transaction, so a deduction and its audit entry
// commit together.
//
// Timestamps are stored as Unix milliseconds.
package sqlstore
