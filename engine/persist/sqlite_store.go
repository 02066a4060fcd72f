package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps a map in a SQLite database: one row per instance plus a header row in meta.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = &SQLiteStore{}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite is single-writer; keep one connection to avoid lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initPragmas(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initPragmas() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA temp_store=MEMORY;`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS instances (
			uid INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			model TEXT NOT NULL,
			px REAL NOT NULL, py REAL NOT NULL, pz REAL NOT NULL,
			rx REAL NOT NULL, ry REAL NOT NULL, rz REAL NOT NULL,
			sx REAL NOT NULL, sy REAL NOT NULL, sz REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS instances_model ON instances(model);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}

// Save replaces the stored map in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap MapSnapshot) (err error) {
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('header', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(hb)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO instances
		(uid, kind, model, px, py, pz, rx, ry, rz, sx, sy, sz)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range snap.Instances {
		if _, err = stmt.ExecContext(ctx,
			int64(r.UID), r.Kind, r.Model,
			r.Position[0], r.Position[1], r.Position[2],
			r.Rotation[0], r.Rotation[1], r.Rotation[2],
			r.Scale[0], r.Scale[1], r.Scale[2],
		); err != nil {
			return fmt.Errorf("insert uid %d: %w", r.UID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context) (MapSnapshot, error) {
	var snap MapSnapshot

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'header'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		snap.Header = Header{Version: FormatVersion}
	case err != nil:
		return snap, err
	default:
		if err := json.Unmarshal([]byte(raw), &snap.Header); err != nil {
			return snap, fmt.Errorf("parse header: %w", err)
		}
	}
	if err := checkVersion(snap.Header); err != nil {
		return snap, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT uid, kind, model, px, py, pz, rx, ry, rz, sx, sy, sz
		FROM instances ORDER BY uid`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()

	for rows.Next() {
		var r InstanceRecord
		var uid int64
		if err := rows.Scan(&uid, &r.Kind, &r.Model,
			&r.Position[0], &r.Position[1], &r.Position[2],
			&r.Rotation[0], &r.Rotation[1], &r.Rotation[2],
			&r.Scale[0], &r.Scale[1], &r.Scale[2],
		); err != nil {
			return snap, err
		}
		r.UID = uint32(uid)
		snap.Instances = append(snap.Instances, r)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}
	snap.Header.Count = len(snap.Instances)
	return snap, nil
}
