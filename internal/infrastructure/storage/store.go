package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ragresearch/internal/ports"
)

// Store persists papers and derived artifacts in a local sqlite database.
// sqlite allows one writer at a time, so the pool is capped at a single
// connection; worker goroutines serialize at the database layer.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.PaperStore = (*Store)(nil)

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sb: sq.StatementBuilder}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS papers (
		arxiv_id     TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		abstract     TEXT NOT NULL DEFAULT '',
		authors      TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL DEFAULT '',
		pdf_url      TEXT NOT NULL DEFAULT '',
		published_at INTEGER NOT NULL DEFAULT 0,
		full_text    TEXT NOT NULL DEFAULT '',
		pdf_path     TEXT NOT NULL DEFAULT '',
		stage        INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_papers_published ON papers(published_at);
	CREATE INDEX IF NOT EXISTS idx_papers_stage ON papers(stage);

	CREATE TABLE IF NOT EXISTS chunks (
		paper_id TEXT NOT NULL REFERENCES papers(arxiv_id),
		seq      INTEGER NOT NULL,
		content  TEXT NOT NULL,
		PRIMARY KEY (paper_id, seq)
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		paper_id TEXT NOT NULL,
		seq      INTEGER NOT NULL,
		model    TEXT NOT NULL,
		vector   BLOB NOT NULL,
		PRIMARY KEY (paper_id, seq, model)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);

	CREATE TABLE IF NOT EXISTS summaries (
		paper_id         TEXT PRIMARY KEY REFERENCES papers(arxiv_id),
		abstract_summary TEXT NOT NULL DEFAULT '',
		methodology      TEXT NOT NULL DEFAULT '',
		results          TEXT NOT NULL DEFAULT '',
		related_work     TEXT NOT NULL DEFAULT '',
		authors          TEXT NOT NULL DEFAULT '',
		published_at     INTEGER NOT NULL DEFAULT 0,
		structure_score  INTEGER NOT NULL DEFAULT 0,
		generated_at     INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pipeline_runs (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at        INTEGER NOT NULL,
		finished_at       INTEGER NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT '',
		error             TEXT NOT NULL DEFAULT '',
		papers_stored     INTEGER NOT NULL DEFAULT 0,
		papers_parsed     INTEGER NOT NULL DEFAULT 0,
		papers_embedded   INTEGER NOT NULL DEFAULT 0,
		papers_summarized INTEGER NOT NULL DEFAULT 0,
		cost_usd          REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cost_totals (
		kind  TEXT PRIMARY KEY,
		units INTEGER NOT NULL DEFAULT 0,
		usd   REAL NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
