// Package sqlite implements db.KVDB on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
//
// Rows live in a single table params(key, value, version), the write index of
// the last applied batch in meta. A commit validates its read set and applies its
// writes inside one SQLite transaction, so a crash never leaves a partial batch.
//
// The connection pool is limited to one connection. Besides keeping a private
// in-memory database (empty Path) alive this gives every statement a total order;
// scans and commits are additionally serialized by a mutex so a scan and its
// reported write index always match.
//
// Save and Load use the shared db snapshot format, so a snapshot written by the
// maple engine can be loaded here and the other way around.
package sqlite
