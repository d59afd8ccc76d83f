package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/timefmt"
)

// Repository persists attendees and station tokens. Queries are written for
// both the pgx and sqlite3 drivers: $n placeholders in ascending order and
// timestamps supplied by the caller.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const attendeeColumns = `id, name, email, barcode, table_number, seat_number, checked_in, checked_in_at,
	current_status, time_in, time_out, total_seconds, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (attendee.Attendee, error) {
	var (
		a                   attendee.Attendee
		table, seat, status sql.NullString
		checkedAt, in, out  sql.NullTime
		total               timefmt.Seconds
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Barcode, &table, &seat, &a.CheckedIn, &checkedAt,
		&status, &in, &out, &total, &a.CreatedAt)
	if err != nil {
		return attendee.Attendee{}, err
	}
	if err := a.CurrentStatus.UnmarshalText([]byte(status.String)); err != nil {
		return attendee.Attendee{}, err
	}
	a.TableNumber = nullString(table)
	a.SeatNumber = nullString(seat)
	a.CheckedInAt = nullTime(checkedAt)
	a.TimeIn = nullTime(in)
	a.TimeOut = nullTime(out)
	a.TotalTimeSpent = total
	return a, nil
}

// List returns attendees newest first. A non-empty query matches name or
// email case-insensitively.
func (r *Repository) List(ctx context.Context, query string) ([]attendee.Attendee, error) {
	stmt := `SELECT ` + attendeeColumns + ` FROM attendees`
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		stmt += ` WHERE LOWER(name) LIKE $1 ESCAPE '\' OR LOWER(email) LIKE $1 ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(q))+"%")
	}
	stmt += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []attendee.Attendee{}
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetByID returns attendee.ErrNotFound when no row matches.
func (r *Repository) GetByID(ctx context.Context, id string) (attendee.Attendee, error) {
	return r.getOne(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, id)
}

// GetByBarcode returns attendee.ErrNotFound when no row matches.
func (r *Repository) GetByBarcode(ctx context.Context, code string) (attendee.Attendee, error) {
	return r.getOne(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE barcode = $1`, code)
}

func (r *Repository) getOne(ctx context.Context, stmt string, arg string) (attendee.Attendee, error) {
	a, err := scanAttendee(r.db.QueryRowContext(ctx, stmt, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return attendee.Attendee{}, attendee.ErrNotFound
	}
	return a, err
}

// EmailTaken reports whether another attendee uses email. excludeID may be
// empty.
func (r *Repository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendees WHERE email = $1 AND id <> $2`, email, excludeID).Scan(&n)
	return n > 0, err
}

func (r *Repository) BarcodeTaken(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendees WHERE barcode = $1`, code).Scan(&n)
	return n > 0, err
}

// Insert writes a new attendee.
func (r *Repository) Insert(ctx context.Context, a attendee.Attendee) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendees (id, name, email, barcode, table_number, seat_number, checked_in, checked_in_at,
			current_status, time_in, time_out, total_seconds, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, a.ID, a.Name, a.Email, a.Barcode, a.TableNumber, a.SeatNumber, a.CheckedIn, a.CheckedInAt,
		string(statusOrDefault(a.CurrentStatus)), a.TimeIn, a.TimeOut, a.TotalTimeSpent, a.CreatedAt)
	return err
}

// UpdateDetails writes the administrative fields of a.
func (r *Repository) UpdateDetails(ctx context.Context, a attendee.Attendee) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendees
		SET name = $1, email = $2, table_number = $3, seat_number = $4
		WHERE id = $5
	`, a.Name, a.Email, a.TableNumber, a.SeatNumber, a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateState writes the attendance fields of next only if the stored status
// still equals expected. It reports false when another writer got there
// first.
func (r *Repository) UpdateState(ctx context.Context, next attendee.Attendee, expected attendee.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendees
		SET checked_in = $1, checked_in_at = $2, current_status = $3, time_in = $4, time_out = $5, total_seconds = $6
		WHERE id = $7 AND current_status = $8
	`, next.CheckedIn, next.CheckedInAt, string(next.CurrentStatus), next.TimeIn, next.TimeOut, next.TotalTimeSpent,
		next.ID, string(statusOrDefault(expected)))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Delete removes an attendee.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpsertStation ensures a station record exists.
func (r *Repository) UpsertStation(ctx context.Context, stationID string, now time.Time) error {
	if stationID == "" {
		return errors.New("station id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stations (station_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (station_id) DO NOTHING
	`, stationID, now)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, stationID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (station_id, token, expires_at, revoked)
		VALUES ($1, $2, $3, $4)
	`, stationID, token, expiresAt, false)
	return err
}

// RefreshTokenActive reports whether token was issued to stationID, is
// unrevoked and has not expired at now.
func (r *Repository) RefreshTokenActive(ctx context.Context, stationID, token string, now time.Time) (bool, error) {
	var (
		expires time.Time
		revoked bool
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT expires_at, revoked FROM refresh_tokens WHERE station_id = $1 AND token = $2
	`, stationID, token).Scan(&expires, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !revoked && now.Before(expires), nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = $1 WHERE token = $2`, true, token)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return attendee.ErrNotFound
	}
	return nil
}

func statusOrDefault(s attendee.Status) attendee.Status {
	if s == "" {
		return attendee.NeverEntered
	}
	return s
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
