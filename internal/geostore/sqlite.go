package geostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore is a Store backed by the geopoints table. Each write is a
// conditional statement on the row's version column, so concurrent writers
// in any number of processes sharing the database file are serialised per
// key by SQLite itself.
type SQLiteStore struct {
	db     *sql.DB
	policy RetryPolicy
}

// NewSQLiteStore creates a new SQLiteStore. The schema must already be
// migrated (see internal/db).
func NewSQLiteStore(db *sql.DB, policy RetryPolicy) *SQLiteStore {
	return &SQLiteStore{db: db, policy: policy}
}

const selectColumns = `id, name, icon, lat_json, lon_json, altitude,
		       tracked_unix_nanos, image_url, detected_text, version`

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.load(ctx, id)
}

// RunTransaction implements Store.
func (s *SQLiteStore) RunTransaction(ctx context.Context, id string, fn TxFunc) (*Record, error) {
	return runTransaction(ctx, s, s.policy, id, fn)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM geopoints
		ORDER BY tracked_unix_nanos DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list geopoints: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) load(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM geopoints WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) put(ctx context.Context, rec *Record, prev int64) error {
	latJSON, err := json.Marshal(nonNil(rec.Lat))
	if err != nil {
		return fmt.Errorf("marshal lat: %w", err)
	}
	lonJSON, err := json.Marshal(nonNil(rec.Lon))
	if err != nil {
		return fmt.Errorf("marshal lon: %w", err)
	}

	var res sql.Result
	if prev == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO geopoints (
				id, name, icon, lat_json, lon_json, altitude,
				tracked_unix_nanos, image_url, detected_text, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO NOTHING`,
			rec.ID, rec.Name, rec.Icon, string(latJSON), string(lonJSON), rec.Altitude,
			rec.Tracked.UnixNano(), nullString(rec.ImageURL), nullString(rec.DetectedText),
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE geopoints SET
				name = ?, icon = ?, lat_json = ?, lon_json = ?, altitude = ?,
				tracked_unix_nanos = ?, image_url = ?, detected_text = ?,
				version = version + 1
			WHERE id = ? AND version = ?`,
			rec.Name, rec.Icon, string(latJSON), string(lonJSON), rec.Altitude,
			rec.Tracked.UnixNano(), nullString(rec.ImageURL), nullString(rec.DetectedText),
			rec.ID, prev,
		)
	}
	if err != nil {
		return fmt.Errorf("write geopoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write geopoint rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	rec.Version = prev + 1
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	r := &Record{}
	var latJSON, lonJSON string
	var trackedNanos int64
	var imageURL, detectedText sql.NullString

	err := row.Scan(
		&r.ID, &r.Name, &r.Icon, &latJSON, &lonJSON, &r.Altitude,
		&trackedNanos, &imageURL, &detectedText, &r.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan geopoint: %w", err)
	}

	if err := json.Unmarshal([]byte(latJSON), &r.Lat); err != nil {
		return nil, fmt.Errorf("decode lat for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(lonJSON), &r.Lon); err != nil {
		return nil, fmt.Errorf("decode lon for %s: %w", r.ID, err)
	}
	r.Tracked = time.Unix(0, trackedNanos).UTC()
	if imageURL.Valid {
		r.ImageURL = &imageURL.String
	}
	if detectedText.Valid {
		r.DetectedText = &detectedText.String
	}
	r.sanitize()
	return r, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
