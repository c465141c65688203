// Package store persists books, page extraction results, sections,
// questions and the API cost ledger in Postgres.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/pyqvault/pyqvault/internal/config"
)

// Store wraps the database handle with typed accessors.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log.With("component", "store")}
}

// DB exposes the underlying handle for callers that need transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Connect opens a Postgres connection and verifies it with a ping.
func Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates all tables and indexes if they don't exist. It is
// idempotent and safe to run on every startup.
func Migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id UUID PRIMARY KEY,
		content_hash TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		exam_name TEXT NOT NULL DEFAULT '',
		exam_year INTEGER NOT NULL DEFAULT 0,
		subject TEXT NOT NULL DEFAULT '',
		exam_type TEXT NOT NULL DEFAULT 'full_length',
		pyq_type TEXT NOT NULL DEFAULT '',
		upload_status TEXT NOT NULL DEFAULT 'pending',
		extraction_progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_step TEXT NOT NULL DEFAULT '',
		total_questions_extracted INTEGER NOT NULL DEFAULT 0,
		expected_questions INTEGER NOT NULL DEFAULT 0,
		page_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		processing_started_at TIMESTAMPTZ,
		processing_ended_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS page_extraction_results (
		id BIGSERIAL PRIMARY KEY,
		book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		page_number INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		subject TEXT NOT NULL DEFAULT '',
		expected_first INTEGER NOT NULL DEFAULT 0,
		expected_last INTEGER NOT NULL DEFAULT 0,
		questions_found INTEGER NOT NULL DEFAULT 0,
		extracted_numbers TEXT NOT NULL DEFAULT '[]',
		missing_numbers TEXT NOT NULL DEFAULT '[]',
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		api_cost_usd NUMERIC(12,6) NOT NULL DEFAULT 0,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (book_id, page_number)
	);

	CREATE TABLE IF NOT EXISTS section_extraction_results (
		id BIGSERIAL PRIMARY KEY,
		book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		subject TEXT NOT NULL,
		start_page INTEGER NOT NULL DEFAULT 0,
		end_page INTEGER NOT NULL DEFAULT 0,
		expected_questions INTEGER NOT NULL DEFAULT 0,
		questions_found INTEGER NOT NULL DEFAULT 0,
		missing_numbers TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'partial',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_cost_tracking (
		id BIGSERIAL PRIMARY KEY,
		book_id UUID REFERENCES books(id) ON DELETE CASCADE,
		operation TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		page_number INTEGER,
		input_tokens BIGINT NOT NULL DEFAULT 0,
		output_tokens BIGINT NOT NULL DEFAULT 0,
		cost_usd NUMERIC(12,6) NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL DEFAULT TRUE,
		error_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS questions (
		id BIGSERIAL PRIMARY KEY,
		book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		question_number INTEGER NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		exam_year INTEGER NOT NULL DEFAULT 0,
		exam_type TEXT NOT NULL DEFAULT '',
		question_text TEXT NOT NULL DEFAULT '',
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT '',
		explanation TEXT NOT NULL DEFAULT '',
		marks_positive DOUBLE PRECISION NOT NULL DEFAULT 0,
		marks_negative DOUBLE PRECISION NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		diagram_data JSONB,
		page_number INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (book_id, question_number)
	);

	CREATE INDEX IF NOT EXISTS idx_books_content_hash ON books(content_hash);
	CREATE INDEX IF NOT EXISTS idx_books_upload_status ON books(upload_status);
	CREATE INDEX IF NOT EXISTS idx_books_exam_identity ON books(exam_name, exam_year);
	CREATE INDEX IF NOT EXISTS idx_pages_book_id ON page_extraction_results(book_id);
	CREATE INDEX IF NOT EXISTS idx_pages_book_status ON page_extraction_results(book_id, status);
	CREATE INDEX IF NOT EXISTS idx_sections_book_id ON section_extraction_results(book_id);
	CREATE INDEX IF NOT EXISTS idx_costs_book_id ON api_cost_tracking(book_id);
	CREATE INDEX IF NOT EXISTS idx_costs_operation ON api_cost_tracking(operation);
	CREATE INDEX IF NOT EXISTS idx_questions_book_id ON questions(book_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
