package marine

import (
	"strconv"
)

// Lines renders the marine as human-readable lines (without trailing newlines)
func (m Marine) Lines() []string {
	lines := []string{
		"Key: " + strconv.FormatInt(m.Key, 10),
		"ID: " + strconv.FormatInt(m.ID, 10),
		"Name: " + m.Name,
		"Coordinates: " + m.Coordinates.String(),
		"Creation date: " + m.CreationDate.Format(DateLayout),
		"Health: " + formatFloat(m.Health),
		"Category: " + m.Category.String(),
		"Weapon type: " + m.WeaponType.String(),
		"Melee weapon: " + m.MeleeWeapon.String(),
	}
	if m.Chapter == nil {
		lines = append(lines, "Chapter: null")
	} else {
		world := m.Chapter.World
		if world == "" {
			world = "null"
		}
		lines = append(lines, "Chapter name: "+m.Chapter.Name, "Chapter world: "+world)
	}
	return append(lines, "Owner: "+m.Owner)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
