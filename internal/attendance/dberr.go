package attendance

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// duplicateColumn reports which unique attendee column err violated, for
// both drivers. Postgres names the constraint attendees_<column>_key; SQLite
// reports "UNIQUE constraint failed: attendees.<column>".
func duplicateColumn(err error) (string, bool) {
	var detail string
	var pgErr *pgconn.PgError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		detail = pgErr.ConstraintName
	case errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		detail = liteErr.Error()
	default:
		return "", false
	}
	for _, col := range []string{"email", "barcode"} {
		if strings.Contains(detail, col) {
			return col, true
		}
	}
	return "", true
}

// conflictFor turns a unique violation into the rejection the pre-checks
// give, so a lost race reads the same as a detected duplicate.
func conflictFor(err error) error {
	col, ok := duplicateColumn(err)
	if !ok {
		return err
	}
	switch col {
	case "email":
		return ErrConflict("email already registered")
	case "barcode":
		return ErrConflict("barcode already assigned")
	}
	return ErrConflict("attendee already exists")
}
