package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// JSONVersion is the record format version stamped on new rows.
const JSONVersion = 1

var ErrNotFound = errors.New("store: not found")

// Record is one significant-motion transition.
type Record struct {
	ID          string `json:"id"`
	Timestamp   int64  `json:"timestamp"` // ms since epoch
	DeviceID    string `json:"deviceId"`
	Label       string `json:"label"`
	Timezone    int    `json:"timezone"` // UTC offset in minutes
	OS          string `json:"os"`
	JSONVersion int    `json:"jsonVersion"`
	IsMoving    bool   `json:"isMoving"`
	Synced      bool   `json:"-"`
}

// NewRecord stamps a transition observed at t.
func NewRecord(t time.Time, deviceID, label string, moving bool) Record {
	_, offset := t.Zone()
	return Record{
		ID:          uuid.NewString(),
		Timestamp:   t.UnixMilli(),
		DeviceID:    deviceID,
		Label:       label,
		Timezone:    offset / 60,
		OS:          runtime.GOOS,
		JSONVersion: JSONVersion,
		IsMoving:    moving,
	}
}

func (r Record) Time() time.Time { return time.UnixMilli(r.Timestamp) }

type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Open opens (creating if needed) the sqlite database at path and migrates it
// to the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer; keeps per-connection pragmas consistent.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Save(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.JSONVersion == 0 {
		r.JSONVersion = JSONVersion
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO significant_motion (
			id, timestamp, device_id, label, timezone, os, json_version, is_moving, synced
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp, r.DeviceID, r.Label, r.Timezone, r.OS, r.JSONVersion, r.IsMoving, r.Synced,
	)
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, timestamp, device_id, label, timezone, os, json_version, is_moving, synced FROM significant_motion`

// List returns up to limit records, newest first.
func (db *DB) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.query(ctx, selectColumns+` ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
}

// Last returns the newest record or ErrNotFound.
func (db *DB) Last(ctx context.Context) (Record, error) {
	recs, err := db.List(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return recs[0], nil
}

// Unsynced returns up to limit records not yet synced, oldest first.
func (db *DB) Unsynced(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.query(ctx, selectColumns+` WHERE synced = 0 ORDER BY timestamp ASC, rowid ASC LIMIT ?`, limit)
}

func (db *DB) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := db.ExecContext(ctx, `UPDATE significant_motion SET synced = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: mark synced: %w", err)
	}
	return nil
}

func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM significant_motion`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// DeviceID returns the persisted device id, generating one on first use.
func (db *DB) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: device id: %w", err)
	}
	id = uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('device_id', ?)`, id); err != nil {
		return "", fmt.Errorf("store: device id: %w", err)
	}
	return id, nil
}

func (db *DB) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.DeviceID, &r.Label, &r.Timezone, &r.OS, &r.JSONVersion, &r.IsMoving, &r.Synced); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: rows: %w", err)
	}
	return out, nil
}
