// Package storage implements the persistence store over SQLite: a
// durable mapping from Telegram user id to user record, and from
// referral-code usage to referral records.
package storage

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by lookups when no row matches.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned on uniqueness violations (duplicate user,
	// duplicate referral pair, referral code collision).
	ErrConflict = errors.New("storage: conflict")
)

// Store exposes user and referral persistence. Every operation acquires
// a pooled connection for its own scope only; nothing is held open
// across delays or between calls.
type Store struct {
	db *sqlx.DB
}

// New wraps an open sqlx handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Timestamps are stored as Unix milliseconds; SQLite has no native
// timestamp type and millisecond integers round-trip without parsing.

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
