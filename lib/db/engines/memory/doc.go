// Package memory provides an in-process implementation of db.IBackend.
//
// Nothing survives a restart, which makes this engine the right choice for
// ephemeral servers and for tests. Every call can be made to fail with
// SetFailing to exercise the store's DB error paths.
package memory
