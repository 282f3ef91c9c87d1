// Package storage provides the embedded SQLite persistence layer.
//
// One database file holds every table: papers and chunks (document store),
// entities and mentions (catalog), facts and conflicts (knowledge graph),
// target scores and weight updates (scoring), feedback events, adapter runs,
// and the audit log. Components own their tables; cross-component references
// are by id only. All multi-row writes go through transactions.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrInvariant is returned when a storage invariant check fails. Callers
// treat it as fatal: the enclosing transaction is aborted and the operator
// alerted.
var ErrInvariant = errors.New("storage invariant violation")

// timeFormat is the stored timestamp layout (UTC, second resolution).
const timeFormat = "2006-01-02T15:04:05Z"

// DB wraps the SQLite database connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies pending
// migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writers; serialize through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// tx runs fn inside a transaction, rolling back on error or panic.
func (d *DB) tx(fn func(tx *sql.Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// now returns the current UTC time truncated to the second, the resolution
// stored in the database.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// nullString converts a string to sql.NullString, treating empty as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullFloat converts a *float64 to sql.NullFloat64. Missing data is explicit
// (NULL), never zero.
func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullInt converts a *int64 to sql.NullInt64.
func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
