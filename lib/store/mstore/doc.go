// Package mstore implements store.IStore as an in-memory mirror over a
// db.IBackend.
//
// All records and users are loaded from the backend on startup. Reads are
// served from memory only. Mutations are write-through: the backend call comes
// first and the mirror is changed only after it succeeded, so a failed write
// (RetCDBError) leaves the visible state untouched.
//
// Locking: one RWMutex guards the records together with the id index and the
// id counter, a second one guards the user table. A mutation holds the write
// lock across its backend call, which keeps uniqueness checks and id
// assignment atomic with the write itself.
//
// Ids are assigned from a counter that starts after the largest id found in
// the backend and only advances on successful inserts. Creation dates are the
// calendar day of the insert (UTC).
//
// Usage Example:
//
//	backend, _ := sqldb.NewSQLBackend(sqldb.Config{Dialect: sqldb.DialectSQLite, DSN: "marines.db"})
//	s, err := mstore.NewMirrorStore(ctx, backend, mstore.Options{Timeout: 5 * time.Second})
//	err = s.Insert(1, m, "alice")
package mstore
