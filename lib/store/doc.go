// Package store defines the operations on the shared marine collection and the
// error model used to report their outcome.
//
// Key Components:
//
//   - IStore Interface: the operation contracts (insert, update, ownership
//     checked deletes, the read-only queries and the user table). All
//     mutating operations take the acting user as caller.
//
//   - Error System: a structured error with a RetCode. Domain failures are
//     RetCBadOperation (key or id absent or already present) and RetCBadOwner
//     (caller does not own the record). RetCDBError reports a failed call to
//     the backing store; the in-memory state is unchanged in that case.
//
// Implementations:
//
//	- Mirror Store (mstore): an in-memory mirror of every record, written
//	  through to a db.IBackend. Available in the
//	  "github.com/ValentinKolb/marines/lib/store/mstore" package.
package store
