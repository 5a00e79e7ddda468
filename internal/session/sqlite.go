package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/healsmart/internal/common"
)

type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, ttl: ttl}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		analysis TEXT NOT NULL DEFAULT '',
		simplified TEXT NOT NULL DEFAULT '',
		analyzed_at TEXT,
		updated_at TEXT NOT NULL,
		expires_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	if err := validate(st); err != nil {
		return err
	}
	now := time.Now().UTC()
	var analyzed, expires *string
	if !st.AnalyzedAt.IsZero() {
		v := formatTime(st.AnalyzedAt)
		analyzed = &v
	}
	if s.ttl > 0 {
		v := formatTime(now.Add(s.ttl))
		expires = &v
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, analysis, simplified, analyzed_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			analysis = excluded.analysis,
			simplified = excluded.simplified,
			analyzed_at = excluded.analyzed_at,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		st.ID, st.Analysis, st.Simplified, analyzed, formatTime(updated), expires,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= ?`, formatTime(now)); err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, analysis, simplified, analyzed_at, updated_at, expires_at
		FROM sessions WHERE id = ?`, id)

	var st State
	var analyzed, updated, expires sql.NullString
	if err := row.Scan(&st.ID, &st.Analysis, &st.Simplified, &analyzed, &updated, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if expires.Valid {
		if t, err := time.Parse(time.RFC3339Nano, expires.String); err == nil && !time.Now().Before(t) {
			return nil, ErrNotFound
		}
	}
	if analyzed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, analyzed.String); err == nil {
			st.AnalyzedAt = t
		}
	}
	if updated.Valid {
		if t, err := time.Parse(time.RFC3339Nano, updated.String); err == nil {
			st.UpdatedAt = t
		}
	}
	return &st, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// formatTime uses a fixed-width layout so stored values compare correctly as text.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
