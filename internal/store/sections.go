package store

import (
	"context"
	"fmt"
)

// ReplaceSections swaps a book's section results for a fresh set in one
// transaction. Aggregation always rewrites the full set, so stale rows
// from an earlier pass can never linger.
func (s *Store) ReplaceSections(ctx context.Context, bookID string, sections []SectionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM section_extraction_results WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("failed to clear sections for book %s: %w", bookID, err)
	}

	query := `
		INSERT INTO section_extraction_results
			(book_id, subject, start_page, end_page, expected_questions,
			 questions_found, missing_numbers, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, sec := range sections {
		if _, err := tx.ExecContext(ctx, query, bookID, sec.Subject, sec.StartPage,
			sec.EndPage, sec.ExpectedQuestions, sec.QuestionsFound,
			encodeInts(sec.MissingNumbers), sec.Status); err != nil {
			return fmt.Errorf("failed to insert section %s: %w", sec.Subject, err)
		}
	}

	return tx.Commit()
}

// ListSections returns a book's section results in page order.
func (s *Store) ListSections(ctx context.Context, bookID string) ([]SectionResult, error) {
	query := `SELECT id, book_id, subject, start_page, end_page, expected_questions,
			questions_found, missing_numbers, status, created_at
		FROM section_extraction_results
		WHERE book_id = $1 ORDER BY start_page, subject`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections for book %s: %w", bookID, err)
	}
	defer rows.Close()

	sections := []SectionResult{}
	for rows.Next() {
		var sec SectionResult
		var missing string
		if err := rows.Scan(&sec.ID, &sec.BookID, &sec.Subject, &sec.StartPage,
			&sec.EndPage, &sec.ExpectedQuestions, &sec.QuestionsFound, &missing,
			&sec.Status, &sec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sec.MissingNumbers = decodeInts(missing)
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}
