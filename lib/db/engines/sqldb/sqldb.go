package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ValentinKolb/marines/lib/db"
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("db")

// deleteChunk is the maximum number of keys bound to a single DELETE statement
const deleteChunk = 500

// Config describes how to reach the database
type Config struct {
	Dialect Dialect
	// DSN is the file path for sqlite and the connection string for postgres
	DSN string
}

// Backend implements db.IBackend on top of database/sql.
//
// The connection pool is opened lazily on first use. When a call fails and the
// database does not answer a ping afterwards, the pool is dropped so the next
// call reconnects.
type Backend struct {
	cfg Config

	mu   sync.Mutex
	pool *sql.DB
}

// NewSQLBackend validates the config. No connection is made until the first call.
func NewSQLBackend(cfg Config) (*Backend, error) {
	if _, err := ParseDialect(string(cfg.Dialect)); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqldb: empty dsn for dialect %s", cfg.Dialect)
	}
	return &Backend{cfg: cfg}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IBackend)
// --------------------------------------------------------------------------

func (b *Backend) LoadRecords(ctx context.Context) ([]marine.Marine, error) {
	pool, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.QueryContext(ctx, `SELECT `+recordColumns+` FROM marines ORDER BY k`)
	if err != nil {
		return nil, b.fail(ctx, "select marines", err)
	}
	defer func() { _ = rows.Close() }()

	var records []marine.Marine
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan marine: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, b.fail(ctx, "iterate marines", err)
	}
	return records, nil
}

func (b *Backend) LoadUsers(ctx context.Context) ([]db.User, error) {
	pool, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.QueryContext(ctx, `SELECT name, hash FROM users ORDER BY name`)
	if err != nil {
		return nil, b.fail(ctx, "select users", err)
	}
	defer func() { _ = rows.Close() }()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.Name, &u.PassHash); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, b.fail(ctx, "iterate users", err)
	}
	return users, nil
}

func (b *Backend) LoadNextID(ctx context.Context) (int64, error) {
	pool, err := b.conn(ctx)
	if err != nil {
		return 0, err
	}
	var next int64
	err = pool.QueryRowContext(ctx, b.cfg.Dialect.rebind(`SELECT value FROM meta WHERE name = ?`), metaNextID).Scan(&next)
	if err != nil {
		return 0, b.fail(ctx, "load next id", err)
	}
	return next, nil
}

// InsertRecord writes the record and raises the id high-water mark in one transaction
func (b *Backend) InsertRecord(ctx context.Context, r marine.Marine) error {
	pool, err := b.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return b.fail(ctx, "begin insert", err)
	}
	if _, err := tx.ExecContext(ctx,
		b.cfg.Dialect.rebind(`INSERT INTO marines (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		recordArgs(r)...); err != nil {
		_ = tx.Rollback()
		return b.fail(ctx, "insert marine", err)
	}
	if _, err := tx.ExecContext(ctx,
		b.cfg.Dialect.rebind(`UPDATE meta SET value = ? WHERE name = ? AND value < ?`),
		r.ID+1, metaNextID, r.ID+1); err != nil {
		_ = tx.Rollback()
		return b.fail(ctx, "raise next id", err)
	}
	if err := tx.Commit(); err != nil {
		return b.fail(ctx, "commit insert", err)
	}
	return nil
}

func (b *Backend) UpdateRecord(ctx context.Context, r marine.Marine) error {
	args := recordArgs(r)
	// key goes last for the WHERE clause
	args = append(args[1:], args[0])
	return b.exec(ctx, "update marine",
		`UPDATE marines SET id = ?, owner = ?, name = ?, x = ?, y = ?, created = ?, health = ?,
			category = ?, weapon = ?, melee = ?, chapter_name = ?, chapter_world = ? WHERE k = ?`,
		args...)
}

func (b *Backend) DeleteRecord(ctx context.Context, key int64) error {
	return b.exec(ctx, "delete marine", `DELETE FROM marines WHERE k = ?`, key)
}

func (b *Backend) DeleteRecords(ctx context.Context, keys []int64) error {
	if len(keys) == 0 {
		return nil
	}
	pool, err := b.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return b.fail(ctx, "begin delete", err)
	}
	for start := 0; start < len(keys); start += deleteChunk {
		end := min(start+deleteChunk, len(keys))
		chunk := keys[start:end]

		query := `DELETE FROM marines WHERE k IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		if _, err := tx.ExecContext(ctx, b.cfg.Dialect.rebind(query), args...); err != nil {
			_ = tx.Rollback()
			return b.fail(ctx, "delete marines", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return b.fail(ctx, "commit delete", err)
	}
	return nil
}

func (b *Backend) ClearOwner(ctx context.Context, owner string) error {
	return b.exec(ctx, "clear owner", `DELETE FROM marines WHERE owner = ?`, owner)
}

func (b *Backend) InsertUser(ctx context.Context, u db.User) error {
	return b.exec(ctx, "insert user", `INSERT INTO users (name, hash) VALUES (?, ?)`, u.Name, u.PassHash)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool == nil {
		return nil
	}
	err := b.pool.Close()
	b.pool = nil
	return err
}

// --------------------------------------------------------------------------
// Connection Handling
// --------------------------------------------------------------------------

// conn returns the open pool or opens a new one (ping + schema)
func (b *Backend) conn(ctx context.Context) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool != nil {
		return b.pool, nil
	}

	if b.cfg.Dialect == DialectSQLite {
		if dir := filepath.Dir(b.cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("%w: create dirs: %v", db.ErrUnavailable, err)
			}
		}
	}

	pool, err := sql.Open(b.cfg.Dialect.driver(), b.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", db.ErrUnavailable, b.cfg.Dialect, err)
	}
	if b.cfg.Dialect == DialectSQLite {
		// sqlite allows a single writer, serialize through one connection
		pool.SetMaxOpenConns(1)
	}
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", db.ErrUnavailable, b.cfg.Dialect, err)
	}
	for _, stmt := range schema {
		if _, err := pool.ExecContext(ctx, stmt); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("%w: create schema: %v", db.ErrUnavailable, err)
		}
	}

	log.Infof("connected to %s database", b.cfg.Dialect)
	b.pool = pool
	return pool, nil
}

// fail wraps err and drops the pool if the database is not reachable anymore
func (b *Backend) fail(ctx context.Context, op string, err error) error {
	b.mu.Lock()
	pool := b.pool
	b.mu.Unlock()

	if pool != nil && pool.PingContext(ctx) != nil {
		b.mu.Lock()
		if b.pool == pool {
			b.pool = nil
			log.Warningf("lost connection to %s database, reconnecting on next call", b.cfg.Dialect)
			_ = pool.Close()
		}
		b.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", db.ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (b *Backend) exec(ctx context.Context, op, query string, args ...any) error {
	pool, err := b.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.ExecContext(ctx, b.cfg.Dialect.rebind(query), args...); err != nil {
		return b.fail(ctx, op, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Row Mapping
// --------------------------------------------------------------------------

func recordArgs(r marine.Marine) []any {
	var category, chapterName, chapterWorld sql.NullString
	if r.Category.Present() {
		category = sql.NullString{String: r.Category.String(), Valid: true}
	}
	if r.Chapter != nil {
		chapterName = sql.NullString{String: r.Chapter.Name, Valid: true}
		chapterWorld = sql.NullString{String: r.Chapter.World, Valid: r.Chapter.World != ""}
	}
	return []any{
		r.Key, r.ID, r.Owner, r.Name,
		r.Coordinates.X, r.Coordinates.Y,
		r.CreationDate.Format(marine.DateLayout),
		r.Health,
		category,
		r.WeaponType.String(), r.MeleeWeapon.String(),
		chapterName, chapterWorld,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (marine.Marine, error) {
	var (
		r                                   marine.Marine
		created, weapon, melee              string
		category, chapterName, chapterWorld sql.NullString
		err                                 error
	)
	if err = s.Scan(&r.Key, &r.ID, &r.Owner, &r.Name, &r.Coordinates.X, &r.Coordinates.Y,
		&created, &r.Health, &category, &weapon, &melee, &chapterName, &chapterWorld); err != nil {
		return r, err
	}
	if r.CreationDate, err = marine.ParseDay(created); err != nil {
		return r, fmt.Errorf("record %d: %w", r.Key, err)
	}
	if r.Category, err = marine.ParseCategory(category.String); err != nil {
		return r, fmt.Errorf("record %d: %w", r.Key, err)
	}
	if r.WeaponType, err = marine.ParseWeaponType(weapon); err != nil {
		return r, fmt.Errorf("record %d: %w", r.Key, err)
	}
	if r.MeleeWeapon, err = marine.ParseMeleeWeapon(melee); err != nil {
		return r, fmt.Errorf("record %d: %w", r.Key, err)
	}
	if chapterName.Valid {
		r.Chapter = &marine.Chapter{Name: chapterName.String, World: chapterWorld.String}
	}
	return r, nil
}
