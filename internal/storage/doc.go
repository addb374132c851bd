// Package storage archives notifications the push client could not deliver,
// so an operator can inspect or resubmit them after the process exits.
//
// Two drivers exist:
//   - "file": append-only JSON Lines
//   - "sqlite": a SQLite database via modernc.org/sqlite (pure Go)
package storage
