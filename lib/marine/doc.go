// Package marine defines the record type served by marines: the Marine with
// its coordinates, optional chapter and the three fixed enumerations
// (Category, WeaponType, MeleeWeapon).
//
// The package focuses on:
//   - The natural ordering of records (health ascending) used by listings and
//     every "lower than" comparison
//   - Field validation before a record ever reaches the store
//   - The human-readable rendering that ends up in response bodies
//
// Category is optional: the zero value CategoryNone means "absent" and never
// compares greater than any declared category. WeaponType and MeleeWeapon are
// required, their zero values only exist to detect missing fields.
//
// All enumerations marshal as their declared names, so JSON payloads read
// like {"weaponType": "BOLT_RIFLE"}. Parsing is case-insensitive.
package marine
