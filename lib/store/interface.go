package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the interface of a transactional key-value table.
// Write access only happens through Transaction, reads either run inside a
// transaction or dirty through Get and Scan.
type IStore interface {
	// Transaction runs fn with all-or-nothing semantics, see RunTransaction.
	Transaction(fn func(tx Txn) error) (err error)
	// Get returns the latest committed value for a key without any isolation.
	// The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Scan calls fn for every committed entry until fn returns false, without any isolation.
	Scan(fn func(key string, value []byte) bool) (err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close releases the resources of the store.
	Close() (err error)
}

// Txn is the view of a single transaction attempt.
// Reads are repeatable and see the transaction's own buffered writes.
type Txn interface {
	// Get reads a key and records its version for validation at commit.
	Get(key string) (value []byte, loaded bool, err error)
	// Scan calls fn for every entry of the table. The whole table becomes part of the
	// read set: the commit fails if any other transaction committed in between.
	// fn may call Put and Delete.
	Scan(fn func(key string, value []byte) bool) (err error)
	// Put buffers a write.
	Put(key string, value []byte)
	// Delete buffers a delete. Deleting a missing key is not an error.
	Delete(key string)
}

// Backend is the part of a store the transaction runner talks to.
// Local and replicated stores only differ in how they implement these three calls.
type Backend interface {
	// TxnGet reads the latest committed value and version of a key (version 0 if absent).
	TxnGet(key string) (value []byte, version uint64, loaded bool, err error)
	// TxnScan reads a consistent snapshot of the table and returns the write index it belongs to.
	TxnScan(fn func(key string, value []byte, version uint64) bool) (writeIdx uint64, err error)
	// TxnCommit validates and applies a batch. A stale read set yields db.ErrConflict.
	TxnCommit(batch *db.Batch) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code,
// so errors.Is(err, ErrScopeNotFound) matches every scope error regardless of its message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel errors for errors.Is checks
var (
	ErrScopeNotFound      = NewError(RetCScopeNotFound, "scope not found")
	ErrTransactionAborted = NewError(RetCTransactionAborted, "transaction aborted")
	ErrOutcomeUnknown     = NewError(RetCOutcomeUnknown, "commit outcome unknown")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCScopeNotFound                       // 4: The virtual host of a scoped key does not exist.
	RetCTransactionAborted                  // 5: The transaction could not be committed.
	RetCConflict                            // 6: The batch was built on stale reads.
	RetCOutcomeUnknown                      // 7: The commit timed out, it may or may not have been applied.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCScopeNotFound:
		return "ScopeNotFound"
	case RetCTransactionAborted:
		return "TransactionAborted"
	case RetCConflict:
		return "Conflict"
	case RetCOutcomeUnknown:
		return "OutcomeUnknown"
	default:
		return "Unknown"
	}
}
