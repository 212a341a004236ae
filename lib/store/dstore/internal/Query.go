package internal

import "github.com/ValentinKolb/rtparam/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry and its version by key.
	QueryTScan                       // Retrieve all entries together with the write index.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTScan:
		return "Scan"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query (empty for some queries).
}

// QueryResult is the result of a QueryTGet operation.
type QueryResult struct {
	Ok      bool
	Value   []byte
	Version uint64
}

// ScanResult is the result of a QueryTScan operation.
type ScanResult struct {
	WriteIdx uint64
	Records  []db.Record
}
