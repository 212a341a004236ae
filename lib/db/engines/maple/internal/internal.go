package internal

import (
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (value with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with metadata
type Entry struct {
	Value []byte // Stored data
	Index uint64 // Write index of the batch that created/updated this entry (its version)
}

func (e Entry) String() string {
	return fmt.Sprintf("Entry{Index: %d, Size: %d}", e.Index, len(e.Value))
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
// Each shard has its own independent map
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of active key-value entries
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}

// --------------------------------------------------------------------------
// Table Type (all shards together with their hash seed)
// --------------------------------------------------------------------------

// Table is the complete, immutable shard layout. Load swaps in a new Table as a
// whole, so readers always see shards and seed that belong together.
type Table struct {
	Seed   util.Seed
	Shards []*Shard
}

// NewTable creates n empty shards with a fresh seed
func NewTable(n int) *Table {
	shards := make([]*Shard, n)
	for i := range shards {
		shards[i] = NewShard()
	}
	return &Table{Seed: util.GenerateSeed(), Shards: shards}
}

// ShardFor returns the shard responsible for key
func (t *Table) ShardFor(key string) *Shard {
	return GetShard(util.HashString(key, t.Seed), t.Shards)
}
