// Package jobsdb is the durable store: one wholesale profile blob per actor
// plus flattened per-track rows indexed for ranking queries.
package jobsdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"jobtrack.gg/internal/jobs"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Small fixed pool: saves are periodic, ranking queries batched.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profile_blob (
			actor_id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS track_progress (
			actor_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			xp REAL NOT NULL,
			PRIMARY KEY (actor_id, track_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_track_rank ON track_progress(track_id, level DESC, xp DESC);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadProfile returns the serialized blob, or nil when the actor has none.
func (s *Store) LoadProfile(ctx context.Context, actorID string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profile_blob WHERE actor_id=?`, actorID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// SaveProfile upserts the blob and every track row in one transaction, so a
// crash never leaves the two halves inconsistent for this actor.
func (s *Store) SaveProfile(ctx context.Context, actorID string, data []byte, rows []jobs.TrackRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profile_blob(actor_id, data) VALUES(?, ?)
		 ON CONFLICT(actor_id) DO UPDATE SET data=excluded.data`,
		actorID, string(data)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO track_progress(actor_id, track_id, level, xp) VALUES(?, ?, ?, ?)
		 ON CONFLICT(actor_id, track_id) DO UPDATE SET level=excluded.level, xp=excluded.xp`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, actorID, r.TrackID, r.Level, r.XP); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// TopActors returns up to limit actor ids ordered by (level DESC, xp DESC).
func (s *Store) TopActors(ctx context.Context, trackID string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT actor_id FROM track_progress WHERE track_id=? ORDER BY level DESC, xp DESC LIMIT ?`,
		trackID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CountActors(ctx context.Context, trackID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM track_progress WHERE track_id=?`, trackID).Scan(&n)
	return n, err
}

// TrackRows returns one actor's persisted rows (admin surface).
func (s *Store) TrackRows(ctx context.Context, actorID string) ([]jobs.TrackRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT track_id, level, xp FROM track_progress WHERE actor_id=? ORDER BY track_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []jobs.TrackRow
	for rows.Next() {
		var r jobs.TrackRow
		if err := rows.Scan(&r.TrackID, &r.Level, &r.XP); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
