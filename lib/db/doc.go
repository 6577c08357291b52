// Package db defines the durable backing store used by the marine store.
//
// The store keeps an authoritative in-memory mirror of all records and users.
// The IBackend interface is the narrow contract it needs from durable storage:
// a bulk load on startup and one write call per mutating store operation.
// Backends know nothing about ownership rules, key uniqueness or ordering,
// they persist exactly what the store hands them.
//
// Key Components:
//
//   - IBackend: load/insert/update/delete contract shared by all engines.
//
//   - User: the persisted form of a registered account (name + password digest).
//
//   - ErrUnavailable: sentinel wrapped by engines that cannot reach storage;
//     the store reports every backend error as a DB error regardless.
//
// Engines:
//
// The engines/memory package keeps everything in process memory. It backs the
// ephemeral server mode and the unit tests, and can be told to fail writes.
//
// The engines/sqldb package persists to a SQL database through database/sql,
// with dialects for SQLite (modernc.org/sqlite, pure Go) and PostgreSQL
// (github.com/jackc/pgx/v5). Connections are opened lazily and re-opened after
// the database dropped them.
//
// The testing package (lib/db/testing) provides a conformance suite every
// engine runs against (RunBackendTests).
//
// The util package provides the lock-free MPSC queue used by the transport
// worker pool.
package db
