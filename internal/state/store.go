// Package state persists the shared video/job registry in SQLite. Access is
// read-modify-persist with a single active writer; each mark call is durable
// before it returns.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clipcut/internal/core"
)

// ErrNotFound is returned when a requested video or job does not exist.
var ErrNotFound = errors.New("not found")

// Store manages pipeline state backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the state database and applies the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applySchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS videos (
            video_id   TEXT PRIMARY KEY,
            state_json TEXT NOT NULL,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS jobs (
            seq         INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id      TEXT NOT NULL UNIQUE,
            spec_json   TEXT NOT NULL,
            status_json TEXT NOT NULL,
            created_at  TEXT NOT NULL,
            updated_at  TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS settings (
            key        TEXT PRIMARY KEY,
            value_json TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// RegisterVideo inserts a video record or refreshes its identity fields,
// preserving any pipeline progress already recorded.
func (s *Store) RegisterVideo(ctx context.Context, videoID, filename, path, contentType string) error {
	existing, ok, err := s.GetVideoState(ctx, videoID)
	if err != nil {
		return err
	}
	if !ok {
		existing = core.VideoState{VideoID: videoID}
	}
	existing.Filename = filename
	existing.Path = path
	if contentType != "" {
		existing.ContentType = contentType
	}
	return s.putVideoState(ctx, existing)
}

// GetVideoState loads the persisted record for a video.
func (s *Store) GetVideoState(ctx context.Context, videoID string) (core.VideoState, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM videos WHERE video_id = ?`, videoID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.VideoState{}, false, nil
	}
	if err != nil {
		return core.VideoState{}, false, fmt.Errorf("load video %s: %w", videoID, err)
	}

	var st core.VideoState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return core.VideoState{}, false, fmt.Errorf("decode video %s: %w", videoID, err)
	}
	return st, true, nil
}

// GetVideoPath returns the registered source path for a video.
func (s *Store) GetVideoPath(ctx context.Context, videoID string) (string, error) {
	st, ok, err := s.GetVideoState(ctx, videoID)
	if err != nil {
		return "", err
	}
	if !ok || st.Path == "" {
		return "", fmt.Errorf("video path not registered for %s: %w", videoID, ErrNotFound)
	}
	return st.Path, nil
}

// ListVideos returns all registered videos ordered by id.
func (s *Store) ListVideos(ctx context.Context) ([]core.VideoState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state_json FROM videos ORDER BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []core.VideoState
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var st core.VideoState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("decode video state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) putVideoState(ctx context.Context, st core.VideoState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode video %s: %w", st.VideoID, err)
	}
	now := nowStamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO videos (video_id, state_json, created_at, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		st.VideoID, string(b), now, now,
	)
	if err != nil {
		return fmt.Errorf("persist video %s: %w", st.VideoID, err)
	}
	return nil
}

func (s *Store) mutateVideo(ctx context.Context, videoID string, mutate func(*core.VideoState)) error {
	st, ok, err := s.GetVideoState(ctx, videoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	mutate(&st)
	return s.putVideoState(ctx, st)
}
