package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrInvalidMutation reports a mutation the store cannot express as SQL.
var ErrInvalidMutation = errors.New("invalid mutation")

// IsPermanent reports whether a commit error will recur on every retry of
// the same batch: a malformed mutation or a violated constraint (foreign
// key, check, not null, unique).
func IsPermanent(err error) bool {
	if errors.Is(err, ErrInvalidMutation) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23: integrity constraint violation.
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == "23"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
