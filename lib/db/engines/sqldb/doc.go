// Package sqldb implements db.IBackend for relational databases through
// database/sql.
//
// Two dialects are supported:
//   - sqlite: the pure go driver modernc.org/sqlite, the DSN is a file path
//   - postgres: the pgx driver (github.com/jackc/pgx/v5/stdlib)
//
// Tables are created on first connect. The pool is opened lazily and dropped
// after a failed call when the database stops answering pings, so a server can
// ride out a database restart.
package sqldb
