// Package testing provides standardised tests and benchmarks for
// database engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A conformance suite for the versioned commit contract (read validation,
//     scan validation, atomic batches, snapshots)
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// Example usage:
//
//	// Creating a factory function for your engine
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
