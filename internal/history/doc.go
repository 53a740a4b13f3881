// Package history persists board snapshots and command outcomes to the
// local SQLite database.
//
// Two tables are kept:
//
//	snapshots  periodic board state, one JSON document per poll
//	commands   every state-changing command with its source and outcome
//
// Both tables are capped: after each insert, rows beyond the configured
// retention count are pruned oldest-first, so the database stays bounded
// on long-running installs. Schema creation is idempotent
// (CREATE TABLE IF NOT EXISTS) and owned by this package.
package history
