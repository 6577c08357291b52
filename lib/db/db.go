package db

import (
	"context"
	"errors"

	"github.com/ValentinKolb/marines/lib/marine"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory   Implementation = "memory"
	ImplSQLite   Implementation = "sqlite"
	ImplPostgres Implementation = "postgres"
)

// User is a registered account as stored by a backend
type User struct {
	Name     string `json:"name"`
	PassHash string `json:"pass_hash"`
}

// ErrUnavailable is returned (wrapped) by backends that cannot reach their storage
var ErrUnavailable = errors.New("backend unavailable")

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// IBackend is the durable storage behind the in-memory mirror of the store.
// The store treats it as a black box: every mutating store operation maps to
// exactly one call, and the mirror is only touched after that call succeeded.
// Implementations must be safe for concurrent use, although the store
// serializes all mutating calls.
type IBackend interface {

	// --------------------------------------------------------------------------
	// Load Operations
	// --------------------------------------------------------------------------

	// LoadRecords returns all stored records including key, id, owner and creation date.
	LoadRecords(ctx context.Context) (records []marine.Marine, err error)

	// LoadUsers returns all registered users.
	LoadUsers(ctx context.Context) (users []User, err error)

	// LoadNextID returns the id following the largest id ever inserted, or 1
	// for an empty backend. Deleting records never lowers it.
	LoadNextID(ctx context.Context) (nextID int64, err error)

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// InsertRecord stores a new record. The record's key is not present yet.
	// It raises the value returned by LoadNextID to record.ID+1 in the same write.
	InsertRecord(ctx context.Context, record marine.Marine) (err error)

	// UpdateRecord replaces the non-identity fields of the record stored under record.Key.
	UpdateRecord(ctx context.Context, record marine.Marine) (err error)

	// DeleteRecord removes the record stored under key.
	DeleteRecord(ctx context.Context, key int64) (err error)

	// DeleteRecords removes all records stored under the given keys. Either all or none are removed.
	DeleteRecords(ctx context.Context, keys []int64) (err error)

	// ClearOwner removes all records owned by owner.
	ClearOwner(ctx context.Context, owner string) (err error)

	// InsertUser stores a new user. The name is not taken yet.
	InsertUser(ctx context.Context, user User) (err error)

	// Close releases all resources held by the backend.
	Close() (err error)
}
