package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const pageColumns = `id, book_id, page_number, status, subject, expected_first,
	expected_last, questions_found, extracted_numbers, missing_numbers, provider,
	model, input_tokens, output_tokens, api_cost_usd::text, processing_time_ms,
	error_message, retry_count, last_retry_at, created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (*PageResult, error) {
	var p PageResult
	var extracted, missing string
	var lastRetry sql.NullTime
	err := row.Scan(&p.ID, &p.BookID, &p.PageNumber, &p.Status, &p.Subject,
		&p.ExpectedFirst, &p.ExpectedLast, &p.QuestionsFound, &extracted, &missing,
		&p.Provider, &p.Model, &p.InputTokens, &p.OutputTokens, &p.APICostUSD,
		&p.ProcessingTimeMS, &p.ErrorMessage, &p.RetryCount, &lastRetry,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ExtractedNumbers = decodeInts(extracted)
	p.MissingNumbers = decodeInts(missing)
	if lastRetry.Valid {
		t := lastRetry.Time
		p.LastRetryAt = &t
	}
	return &p, nil
}

// PageStub seeds one pending page row before extraction begins.
type PageStub struct {
	PageNumber    int
	Subject       string
	ExpectedFirst int
	ExpectedLast  int
}

// InsertPageStubs creates pending rows for every page of a book in one
// transaction. Existing rows are left untouched so a re-run of the
// splitter cannot reset extraction state.
func (s *Store) InsertPageStubs(ctx context.Context, bookID string, stubs []PageStub) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO page_extraction_results
			(book_id, page_number, status, subject, expected_first, expected_last)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (book_id, page_number) DO NOTHING`

	for _, stub := range stubs {
		if _, err := tx.ExecContext(ctx, query, bookID, stub.PageNumber,
			PageStatusPending, stub.Subject, stub.ExpectedFirst, stub.ExpectedLast); err != nil {
			return fmt.Errorf("failed to insert page stub %d: %w", stub.PageNumber, err)
		}
	}

	return tx.Commit()
}

// SavePageResult upserts the extraction outcome for one page. The
// caller supplies the retry count explicitly; this method never
// increments it.
func (s *Store) SavePageResult(ctx context.Context, p *PageResult) error {
	query := `
		INSERT INTO page_extraction_results
			(book_id, page_number, status, subject, expected_first, expected_last,
			 questions_found, extracted_numbers, missing_numbers, provider, model,
			 input_tokens, output_tokens, api_cost_usd, processing_time_ms,
			 error_message, retry_count, last_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::numeric, $15, $16, $17, $18)
		ON CONFLICT (book_id, page_number) DO UPDATE SET
			status = EXCLUDED.status,
			subject = EXCLUDED.subject,
			expected_first = EXCLUDED.expected_first,
			expected_last = EXCLUDED.expected_last,
			questions_found = EXCLUDED.questions_found,
			extracted_numbers = EXCLUDED.extracted_numbers,
			missing_numbers = EXCLUDED.missing_numbers,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			input_tokens = EXCLUDED.input_tokens,
			output_tokens = EXCLUDED.output_tokens,
			api_cost_usd = EXCLUDED.api_cost_usd,
			processing_time_ms = EXCLUDED.processing_time_ms,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			last_retry_at = EXCLUDED.last_retry_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	var lastRetry sql.NullTime
	if p.LastRetryAt != nil {
		lastRetry = sql.NullTime{Time: *p.LastRetryAt, Valid: true}
	}
	cost := p.APICostUSD
	if cost == "" {
		cost = "0"
	}

	err := s.db.QueryRowContext(ctx, query, p.BookID, p.PageNumber, p.Status,
		p.Subject, p.ExpectedFirst, p.ExpectedLast, p.QuestionsFound,
		encodeInts(p.ExtractedNumbers), encodeInts(p.MissingNumbers),
		p.Provider, p.Model, p.InputTokens, p.OutputTokens, cost,
		p.ProcessingTimeMS, p.ErrorMessage, p.RetryCount, lastRetry).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save page result %d for book %s: %w", p.PageNumber, p.BookID, err)
	}
	return nil
}

// GetPage fetches one page result.
func (s *Store) GetPage(ctx context.Context, bookID string, pageNumber int) (*PageResult, error) {
	query := `SELECT ` + pageColumns + ` FROM page_extraction_results
		WHERE book_id = $1 AND page_number = $2`
	p, err := scanPage(s.db.QueryRowContext(ctx, query, bookID, pageNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page %d for book %s: %w", pageNumber, bookID, err)
	}
	return p, nil
}

// ListPages returns all page results for a book in page order.
func (s *Store) ListPages(ctx context.Context, bookID string) ([]PageResult, error) {
	query := `SELECT ` + pageColumns + ` FROM page_extraction_results
		WHERE book_id = $1 ORDER BY page_number`
	return s.queryPages(ctx, query, bookID)
}

// ListPagesByStatus returns a book's pages in the given statuses, in
// page order.
func (s *Store) ListPagesByStatus(ctx context.Context, bookID string, statuses ...string) ([]PageResult, error) {
	query := `SELECT ` + pageColumns + ` FROM page_extraction_results
		WHERE book_id = $1 AND status = ANY($2) ORDER BY page_number`
	return s.queryPages(ctx, query, bookID, pq.Array(statuses))
}

// CountPagesByStatus returns how many of a book's pages are in each status.
func (s *Store) CountPagesByStatus(ctx context.Context, bookID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM page_extraction_results
		WHERE book_id = $1 GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages for book %s: %w", bookID, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan page count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryPages(ctx context.Context, query string, args ...any) ([]PageResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := []PageResult{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}
