package sinks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/rubric-harvester/internal/domain"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS articles (
	url TEXT PRIMARY KEY,
	rubrique_id TEXT NOT NULL,
	page_num INTEGER NOT NULL,
	title TEXT,
	date_publication TEXT,
	run_id TEXT,
	record TEXT NOT NULL,
	harvested_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_rubrique ON articles(rubrique_id);
`

// sqliteSink stores one row per article URL. Re-emitting a URL is ignored.
type sqliteSink struct {
	id    string
	runID string
	db    *sql.DB
}

func newSQLiteSink(ctx context.Context, cfg SinkConfig, env Env) (Sink, error) {
	if cfg.SQLite == nil || cfg.SQLite.Path == "" {
		return nil, fmt.Errorf("sink %q missing sqlite path", cfg.ID)
	}
	path := cfg.SQLite.Path
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// database/sql would otherwise open concurrent writers against one file.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &sqliteSink{id: cfg.ID, runID: env.RunID, db: db}, nil
}

func (s *sqliteSink) ID() string   { return s.id }
func (s *sqliteSink) Type() string { return TypeSQLite }

func (s *sqliteSink) Write(ctx context.Context, rec domain.ArticleRecord) error {
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO articles (url, rubrique_id, page_num, title, date_publication, run_id, record, harvested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.URL, rec.RubricID, rec.PageNum, nullString(rec.Title), nullString(rec.PublicationDate),
		s.runID, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *sqliteSink) Close() error {
	return s.db.Close()
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
