// Package util provides helpers shared by the db.KVDB engines.
//
// The package contains:
//   - statistics: A SizeHistogram for tracking data size distribution and
//     summary statistics for the distribution of entries over shards
//   - functions: Seed generation and the seeded FNV-1a hash used for shard selection
//
// Both are used by engines to report GetInfo metadata without full scans.
package util
