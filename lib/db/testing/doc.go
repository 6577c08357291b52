// Package testing provides standardised tests and benchmarks for
// storage backends that satisfy the db.IBackend interface.
//
// The package contains:
//   - RunBackendTests: a conformance suite for the IBackend contract (inserts,
//     updates, batch deletes, owner clearing, users, optional fields)
//   - RunBackendBenchmarks: throughput measurements of common backend calls
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t *testing.T) db.IBackend {
//		return NewMyBackend()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunBackendTests(t, "MyBackend", factory)
package testing
