package util

import "hash/maphash"

// UintKey is the hashed form of a record key, used to pick a shard
type UintKey uint64

// Seed keys the shard hash. Every engine instance draws its own so the
// shard layout of two tables never lines up.
type Seed = maphash.Seed

// GenerateSeed returns a fresh random Seed
func GenerateSeed() Seed {
	return maphash.MakeSeed()
}

// HashString maps s to a UintKey. The result is stable for a given seed
// within one process only and must never be persisted.
func HashString(s string, seed Seed) UintKey {
	return UintKey(maphash.String(seed, s))
}
