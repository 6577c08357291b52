package marine

import (
	"cmp"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the layout used to render creation dates
const DateLayout = "2006-01-02"

// Coordinates is the position of a marine. Both values are required.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%s, %s)", formatFloat(c.X), formatFloat(c.Y))
}

// Chapter is the optional chapter a marine belongs to. World may be empty.
type Chapter struct {
	Name  string `json:"name"`
	World string `json:"world,omitempty"`
}

// Marine is a single record of the collection.
//
// Key is chosen by the client. ID, CreationDate and Owner are assigned by the
// server on insertion and never change afterwards; whatever a client sends in
// these fields is ignored.
type Marine struct {
	Key          int64       `json:"key"`
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Coordinates  Coordinates `json:"coordinates"`
	CreationDate time.Time   `json:"creationDate"`
	Health       float64     `json:"health"`
	Category     Category    `json:"category,omitempty"`
	WeaponType   WeaponType  `json:"weaponType"`
	MeleeWeapon  MeleeWeapon `json:"meleeWeapon"`
	Chapter      *Chapter    `json:"chapter,omitempty"`
	Owner        string      `json:"owner"`
}

// Clone returns a deep copy of the marine (the chapter is copied as well)
func (m Marine) Clone() Marine {
	if m.Chapter != nil {
		c := *m.Chapter
		m.Chapter = &c
	}
	return m
}

// WithIdentity returns a copy of m carrying key, id, creation date and owner
// of old. Used whenever a record replaces an existing one.
func (m Marine) WithIdentity(old Marine) Marine {
	m = m.Clone()
	m.Key = old.Key
	m.ID = old.ID
	m.CreationDate = old.CreationDate
	m.Owner = old.Owner
	return m
}

// --------------------------------------------------------------------------
// Ordering
// --------------------------------------------------------------------------

// Compare orders marines by health ascending. It returns -1, 0 or +1.
func Compare(a, b Marine) int {
	return cmp.Compare(a.Health, b.Health)
}

// Less reports whether a comes before b in the natural order
func (m Marine) Less(other Marine) bool {
	return Compare(m, other) < 0
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// ValidationError reports a malformed field value of a record
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Validate checks all client-provided fields. Server-assigned fields are not checked.
func (m Marine) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{Field: "name", Reason: "can't be empty"}
	}
	if !finite(m.Coordinates.X) || !finite(m.Coordinates.Y) {
		return &ValidationError{Field: "coordinates", Reason: "must be finite numbers"}
	}
	if !finite(m.Health) || m.Health <= 0 {
		return &ValidationError{Field: "health", Reason: "must be > 0"}
	}
	if !m.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "is not a known category"}
	}
	if !m.WeaponType.Valid() {
		return &ValidationError{Field: "weaponType", Reason: "is required"}
	}
	if !m.MeleeWeapon.Valid() {
		return &ValidationError{Field: "meleeWeapon", Reason: "is required"}
	}
	if m.Chapter != nil && strings.TrimSpace(m.Chapter.Name) == "" {
		return &ValidationError{Field: "chapter name", Reason: "can't be empty"}
	}
	return nil
}

// --------------------------------------------------------------------------
// Dates
// --------------------------------------------------------------------------

// Day truncates t to its calendar date (midnight UTC of the same local date)
func Day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a date in DateLayout
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
