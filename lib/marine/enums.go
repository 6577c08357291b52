package marine

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Category (optional, ordered)
// --------------------------------------------------------------------------

// Category is the astartes category of a marine. The declaration order is the
// order used by FilterGreaterThanCategory.
type Category uint8

const (
	CategoryNone Category = iota // no category set
	CategoryAggressor
	CategoryInceptor
	CategoryTactical
	CategoryChaplain
	CategoryApothecary
)

var categoryNames = []string{"", "AGGRESSOR", "INCEPTOR", "TACTICAL", "CHAPLAIN", "APOTHECARY"}

// Categories returns all declared categories in order (without CategoryNone)
func Categories() []Category {
	return []Category{CategoryAggressor, CategoryInceptor, CategoryTactical, CategoryChaplain, CategoryApothecary}
}

// Valid reports whether c is CategoryNone or a declared category
func (c Category) Valid() bool { return int(c) < len(categoryNames) }

// Present reports whether a category is set
func (c Category) Present() bool { return c != CategoryNone && c.Valid() }

// GreaterThan reports whether c is present and declared after other.
// An absent category is never greater than anything.
func (c Category) GreaterThan(other Category) bool {
	return c.Present() && c > other
}

func (c Category) String() string {
	if c == CategoryNone {
		return "null"
	}
	return enumName(categoryNames, int(c))
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", c)
	}
	return []byte(categoryNames[c]), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCategory parses a category name. The empty string and "null" yield CategoryNone.
func ParseCategory(s string) (Category, error) {
	if s == "" || strings.EqualFold(s, "null") {
		return CategoryNone, nil
	}
	i, ok := parseEnum(categoryNames, s)
	if !ok {
		return CategoryNone, fmt.Errorf("unknown category %q (one of %s)", s, strings.Join(categoryNames[1:], ", "))
	}
	return Category(i), nil
}

// --------------------------------------------------------------------------
// WeaponType (required)
// --------------------------------------------------------------------------

// WeaponType is the ranged weapon of a marine
type WeaponType uint8

const (
	WeaponNone WeaponType = iota // unset, rejected by validation
	WeaponHeavyBoltgun
	WeaponBoltRifle
	WeaponPlasmaGun
	WeaponCombiPlasmaGun
	WeaponInfernoPistol
)

var weaponNames = []string{"", "HEAVY_BOLTGUN", "BOLT_RIFLE", "PLASMA_GUN", "COMBI_PLASMA_GUN", "INFERNO_PISTOL"}

func (w WeaponType) Valid() bool { return w != WeaponNone && int(w) < len(weaponNames) }

func (w WeaponType) String() string { return enumName(weaponNames, int(w)) }

func (w WeaponType) MarshalText() ([]byte, error) {
	if int(w) >= len(weaponNames) {
		return nil, fmt.Errorf("invalid weapon type %d", w)
	}
	return []byte(weaponNames[w]), nil
}

func (w *WeaponType) UnmarshalText(b []byte) error {
	v, err := ParseWeaponType(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}

// ParseWeaponType parses a weapon type name. The empty string yields WeaponNone.
func ParseWeaponType(s string) (WeaponType, error) {
	if s == "" {
		return WeaponNone, nil
	}
	i, ok := parseEnum(weaponNames, s)
	if !ok {
		return WeaponNone, fmt.Errorf("unknown weapon type %q (one of %s)", s, strings.Join(weaponNames[1:], ", "))
	}
	return WeaponType(i), nil
}

// --------------------------------------------------------------------------
// MeleeWeapon (required)
// --------------------------------------------------------------------------

// MeleeWeapon is the close combat weapon of a marine
type MeleeWeapon uint8

const (
	MeleeNone MeleeWeapon = iota // unset, rejected by validation
	MeleeChainSword
	MeleePowerSword
	MeleeChainAxe
	MeleeManreaper
	MeleePowerFist
)

var meleeNames = []string{"", "CHAIN_SWORD", "POWER_SWORD", "CHAIN_AXE", "MANREAPER", "POWER_FIST"}

func (m MeleeWeapon) Valid() bool { return m != MeleeNone && int(m) < len(meleeNames) }

func (m MeleeWeapon) String() string { return enumName(meleeNames, int(m)) }

func (m MeleeWeapon) MarshalText() ([]byte, error) {
	if int(m) >= len(meleeNames) {
		return nil, fmt.Errorf("invalid melee weapon %d", m)
	}
	return []byte(meleeNames[m]), nil
}

func (m *MeleeWeapon) UnmarshalText(b []byte) error {
	v, err := ParseMeleeWeapon(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMeleeWeapon parses a melee weapon name. The empty string yields MeleeNone.
func ParseMeleeWeapon(s string) (MeleeWeapon, error) {
	if s == "" {
		return MeleeNone, nil
	}
	i, ok := parseEnum(meleeNames, s)
	if !ok {
		return MeleeNone, fmt.Errorf("unknown melee weapon %q (one of %s)", s, strings.Join(meleeNames[1:], ", "))
	}
	return MeleeWeapon(i), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func enumName(names []string, i int) string {
	if i <= 0 || i >= len(names) {
		return "unknown"
	}
	return names[i]
}

// parseEnum returns the index of s in names (case-insensitive, index 0 is never matched)
func parseEnum(names []string, s string) (int, bool) {
	s = strings.TrimSpace(s)
	for i := 1; i < len(names); i++ {
		if strings.EqualFold(names[i], s) {
			return i, true
		}
	}
	return 0, false
}
