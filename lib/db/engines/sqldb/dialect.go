package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect selects the SQL flavour and the database/sql driver
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect parses a dialect name ("sqlite" or "postgres")
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(DialectSQLite):
		return DialectSQLite, nil
	case string(DialectPostgres), "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unknown sql dialect %q (sqlite or postgres)", s)
	}
}

// driver returns the database/sql driver name registered for the dialect
func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// rebind rewrites '?' placeholders to the positional form of the dialect
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

var schema = []string{
	`CREATE TABLE IF NOT EXISTS marines (
		k             BIGINT PRIMARY KEY,
		id            BIGINT NOT NULL UNIQUE,
		owner         TEXT NOT NULL,
		name          TEXT NOT NULL,
		x             DOUBLE PRECISION NOT NULL,
		y             DOUBLE PRECISION NOT NULL,
		created       TEXT NOT NULL,
		health        DOUBLE PRECISION NOT NULL,
		category      TEXT NULL,
		weapon        TEXT NOT NULL,
		melee         TEXT NOT NULL,
		chapter_name  TEXT NULL,
		chapter_world TEXT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	// databases written before the meta table existed start from their largest id
	// (WHERE true keeps sqlite from parsing ON CONFLICT as a join constraint)
	`INSERT INTO meta (name, value)
		SELECT '` + metaNextID + `', COALESCE(MAX(id), 0) + 1 FROM marines WHERE true
		ON CONFLICT (name) DO NOTHING`,
}

// metaNextID names the row holding the id high-water mark
const metaNextID = "next_id"

const recordColumns = `k, id, owner, name, x, y, created, health, category, weapon, melee, chapter_name, chapter_world`
