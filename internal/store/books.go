package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const bookColumns = `id, content_hash, title, description, file_name, file_size,
	exam_name, exam_year, subject, exam_type, pyq_type, upload_status,
	extraction_progress, current_step, total_questions_extracted,
	expected_questions, page_count, COALESCE(error_message, ''),
	processing_started_at, processing_ended_at, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	var b Book
	var started, ended sql.NullTime
	err := row.Scan(&b.ID, &b.ContentHash, &b.Title, &b.Description, &b.FileName,
		&b.FileSize, &b.ExamName, &b.ExamYear, &b.Subject, &b.ExamType, &b.PYQType,
		&b.UploadStatus, &b.ExtractionProgress, &b.CurrentStep,
		&b.TotalQuestionsExtracted, &b.ExpectedQuestions, &b.PageCount,
		&b.ErrorMessage, &started, &ended, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		b.ProcessingStartedAt = &started.Time
	}
	if ended.Valid {
		b.ProcessingEndedAt = &ended.Time
	}
	return &b, nil
}

// CreateBook inserts a new book. A missing ID is generated.
func (s *Store) CreateBook(ctx context.Context, b *Book) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.UploadStatus == "" {
		b.UploadStatus = StatusPending
	}

	query := `
		INSERT INTO books (id, content_hash, title, description, file_name,
			file_size, exam_name, exam_year, subject, exam_type, pyq_type,
			upload_status, current_step, expected_questions, page_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, b.ID, b.ContentHash, b.Title,
		b.Description, b.FileName, b.FileSize, b.ExamName, b.ExamYear, b.Subject,
		b.ExamType, b.PYQType, b.UploadStatus, b.CurrentStep, b.ExpectedQuestions,
		b.PageCount).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// GetBook fetches a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	b, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", id, err)
	}
	return b, nil
}

// ListBooks returns all books, newest first.
func (s *Store) ListBooks(ctx context.Context) ([]Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

// DeleteBook removes a book. Dependent page, section, question and
// cost ledger rows are removed by ON DELETE CASCADE.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBookByHash returns the book with the given content hash, or nil.
func (s *Store) FindBookByHash(ctx context.Context, hash string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE content_hash = $1 LIMIT 1`
	b, err := scanBook(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book by hash: %w", err)
	}
	return b, nil
}

// FindBookByIdentity returns a book matching the exam identity
// (name, year), or nil. The same exam re-scanned with different bytes,
// or with a differently inferred subject or paper type, is still the
// same paper. Name matching is case-insensitive.
func (s *Store) FindBookByIdentity(ctx context.Context, examName string, examYear int) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books
		WHERE LOWER(exam_name) = LOWER($1) AND exam_year = $2
		LIMIT 1`
	b, err := scanBook(s.db.QueryRowContext(ctx, query, examName, examYear))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book by identity: %w", err)
	}
	return b, nil
}

// UpdateBookProgress advances extraction progress and the current step.
// Progress never moves backwards: the stored value is the max of the
// old and new values.
func (s *Store) UpdateBookProgress(ctx context.Context, id string, progress float64, step string) error {
	query := `UPDATE books
		SET extraction_progress = GREATEST(extraction_progress, $2),
		    current_step = $3,
		    updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, progress, step)
	if err != nil {
		return fmt.Errorf("failed to update progress for book %s: %w", id, err)
	}
	return nil
}

// SetBookStatus moves a book to a new upload status. The error message
// is cleared unless the new status is failed, and the processing
// timestamps track the processing window.
func (s *Store) SetBookStatus(ctx context.Context, id, status, errMsg string) error {
	var msg sql.NullString
	if status == StatusFailed && errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}
	query := `UPDATE books
		SET upload_status = $2,
		    error_message = $3,
		    processing_started_at = CASE
		        WHEN $2 = 'processing' THEN NOW()
		        ELSE processing_started_at END,
		    processing_ended_at = CASE
		        WHEN $2 = 'processing' THEN NULL
		        WHEN $2 IN ('completed', 'failed') THEN NOW()
		        ELSE processing_ended_at END,
		    updated_at = NOW()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, status, msg)
	if err != nil {
		return fmt.Errorf("failed to set status for book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBookPageCount records the page count discovered during splitting.
func (s *Store) SetBookPageCount(ctx context.Context, id string, pages int) error {
	query := `UPDATE books SET page_count = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, pages)
	if err != nil {
		return fmt.Errorf("failed to set page count for book %s: %w", id, err)
	}
	return nil
}

// bookPatchColumns maps JSON field names accepted by PATCH to columns.
var bookPatchColumns = map[string]string{
	"title":             "title",
	"description":       "description",
	"examName":          "exam_name",
	"examYear":          "exam_year",
	"subject":           "subject",
	"examType":          "exam_type",
	"pyqType":           "pyq_type",
	"expectedQuestions": "expected_questions",
}

// UpdateBookFields applies a partial metadata update. Unknown fields
// are rejected so callers can surface a 400.
func (s *Store) UpdateBookFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields))
	args := []any{id}
	for name, value := range fields {
		col, ok := bookPatchColumns[name]
		if !ok {
			return fmt.Errorf("field %q cannot be updated", name)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	query := fmt.Sprintf("UPDATE books SET %s, updated_at = NOW() WHERE id = $1",
		strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update book %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecountBookTotals recomputes total_questions_extracted from the
// questions table instead of incrementing a counter, so retries can
// never double count.
func (s *Store) RecountBookTotals(ctx context.Context, id string) error {
	query := `UPDATE books
		SET total_questions_extracted = (
			SELECT COUNT(*) FROM questions WHERE book_id = $1
		), updated_at = NOW()
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to recount totals for book %s: %w", id, err)
	}
	return nil
}
