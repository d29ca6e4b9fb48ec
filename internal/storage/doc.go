// Package storage persists instance definitions and the action history.
//
// Drivers:
//   - "file": JSON instance map rewritten wholesale + JSON Lines action history
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
//
// In-memory state in the automation core stays authoritative; a store only
// mirrors it.
package storage
