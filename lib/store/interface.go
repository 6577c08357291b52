package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/marines/lib/marine"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Info describes the collection as a whole
type Info struct {
	// Type is a label of the record container
	Type string
	// Count is the number of records
	Count int
	// Newest is the most recent creation date, zero if the collection is empty
	Newest time.Time
}

// DateCount is the number of records created on Date
type DateCount struct {
	Date  time.Time
	Count int
}

// IStore is the interface of the shared marine collection.
// Mutating operations take the acting user as caller and return a *Error on failure.
// Every record returned is a copy, callers may modify it freely.
type IStore interface {
	// Info returns the record count and the newest creation date.
	Info() Info
	// List returns all records of all owners ordered by key.
	List() []marine.Marine
	// Insert stores m under key. ID, creation date and owner are assigned by the store.
	// Fails with RetCBadOperation if key is already taken.
	Insert(key int64, m marine.Marine, caller string) error
	// Update replaces the record with the given id, keeping key, id, creation date and owner.
	// Fails with RetCBadOperation if there is no such id and RetCBadOwner if caller is not the owner.
	Update(id int64, m marine.Marine, caller string) error
	// RemoveKey deletes the record stored under key.
	// Fails with RetCBadOperation if key is absent and RetCBadOwner if caller is not the owner.
	RemoveKey(key int64, caller string) error
	// Clear deletes all records owned by caller.
	Clear(caller string) error
	// RemoveLower deletes all of caller's records that are lower than ref in the natural order.
	// It returns the number of deleted records.
	RemoveLower(ref marine.Marine, caller string) (int, error)
	// ReplaceIfLower replaces the record stored under key only if m.Health is
	// strictly lower than the stored health; equal or higher health keeps the
	// stored record. Fails like Update. A record that is not replaced is no error.
	ReplaceIfLower(key int64, m marine.Marine, caller string) (replaced bool, err error)
	// RemoveLowerKey deletes all of caller's records with a key lower than key.
	// It returns the number of deleted records.
	RemoveLowerKey(key int64, caller string) (int, error)
	// GroupCountingByCreationDate counts the records per creation date, ordered by date.
	GroupCountingByCreationDate() []DateCount
	// FilterGreaterThanCategory returns the records whose category is present and greater than c.
	FilterGreaterThanCategory(c marine.Category) []marine.Marine
	// Ascending returns all records in the natural order.
	Ascending() []marine.Marine
	// AddUser registers a new user. Fails with RetCBadOperation if the name is taken.
	AddUser(name, passHash string) error
	// CheckUser reports whether a user with that name and password hash exists.
	CheckUser(name, passHash string) bool
	// Close releases the backing store.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewDBError wraps a failed backend call
func NewDBError(msg string, err error) *Error {
	return &Error{
		Code: RetCDBError,
		Msg:  msg,
		Err:  err,
	}
}

// CodeOf returns the RetCode carried by err, RetCSuccess for nil and
// RetCInternalError for errors that are no *Error.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return RetCInternalError
}

// IsCode reports whether err carries the given code
func IsCode(err error, code RetCode) bool {
	return err != nil && CodeOf(err) == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCBadOperation                 // 2: Target key or id is absent, or already present.
	RetCBadOwner                     // 3: Caller does not own the record.
	RetCDBError                      // 4: The backing store call failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCBadOperation:
		return "BadOperation"
	case RetCBadOwner:
		return "BadOwner"
	case RetCDBError:
		return "DBError"
	default:
		return "Unknown"
	}
}
