// Package internal provides the raft log and query structures of the dstore package.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command: A transaction batch (read set, scan marker, writes) proposed to the raft
//     shard. Commands are the only thing stored in the raft log, so they use a compact
//     binary encoding that is identical on every replica.
//
//   - Query: A read-only request (Get, Scan, GetDBInfo) executed locally on a replica
//     through SyncRead or StaleRead. Queries never leave the process and are therefore
//     plain structs.
//
// Command Format (all integers big endian):
//
//	- 1 byte: Command type (Commit)
//	- 1 byte: Flags (bit 0: the transaction scanned the table)
//	- 8 bytes: Scan index
//	- 4 bytes: Read count, then per read: 4 bytes key length, key, 8 bytes version
//	- 4 bytes: Write count, then per write: 1 byte flags (bit 0: delete),
//	  4 bytes key length, key, 4 bytes value length, value
//
// The write index of a command is not part of the encoding, the state machine uses
// the raft log index of the entry.
package internal
