// Package store persists the small amount of portal state that must survive a
// restart: the access token and the last organization snapshot.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var ErrUnsupportedDriver = errors.New("store: unsupported driver")

type dialect struct {
	create string
	get    string
	put    string
	delete string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		create: `create table if not exists portal_state (
			key text primary key,
			value blob not null,
			updated_at timestamp not null
		)`,
		get: `select value from portal_state where key = ?`,
		put: `insert into portal_state (key, value, updated_at) values (?, ?, ?)
			on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		delete: `delete from portal_state where key = ?`,
	},
	DriverPostgres: {
		create: `create table if not exists portal_state (
			key text primary key,
			value bytea not null,
			updated_at timestamptz not null
		)`,
		get: `select value from portal_state where key = $1`,
		put: `insert into portal_state (key, value, updated_at) values ($1, $2, $3)
			on conflict (key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		delete: `delete from portal_state where key = $1`,
	},
}

// SQL is a key/value table on top of database/sql.
type SQL struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to driver/dsn and ensures the state table exists.
func Open(ctx context.Context, driver, dsn string) (*SQL, error) {
	driver = strings.TrimSpace(driver)
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if driver == DriverSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(15 * time.Minute)
	}
	s, err := New(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection and ensures the state table exists.
func New(ctx context.Context, db *sql.DB, driver string) (*SQL, error) {
	if db == nil {
		return nil, errors.New("store: database connection unavailable")
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	if _, err := db.ExecContext(ctx, d.create); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQL{db: db, dialect: d, now: time.Now}, nil
}

func (s *SQL) Close() error { return s.db.Close() }

// Ping reports whether the backing database is reachable.
func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *SQL) Put(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("store: key is required")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.put, key, value, s.now().UTC())
	return err
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.delete, key)
	return err
}
