package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertCost appends one row to the cost ledger. The ledger is
// append-only; rows are never updated or deleted.
func (s *Store) InsertCost(ctx context.Context, e *CostEntry) error {
	var bookID sql.NullString
	if e.BookID != "" {
		bookID = sql.NullString{String: e.BookID, Valid: true}
	}
	var page sql.NullInt64
	if e.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*e.PageNumber), Valid: true}
	}
	cost := e.CostUSD
	if cost == "" {
		cost = "0"
	}

	query := `
		INSERT INTO api_cost_tracking
			(book_id, operation, provider, model, page_number, input_tokens,
			 output_tokens, cost_usd, success, error_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query, bookID, e.Operation, e.Provider,
		e.Model, page, e.InputTokens, e.OutputTokens, cost, e.Success,
		e.ErrorType).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}
	return nil
}

// ListCosts returns all ledger rows for a book, oldest first.
func (s *Store) ListCosts(ctx context.Context, bookID string) ([]CostEntry, error) {
	query := `SELECT id, COALESCE(book_id::text, ''), operation, provider, model,
			page_number, input_tokens, output_tokens, cost_usd::text, success,
			error_type, created_at
		FROM api_cost_tracking WHERE book_id = $1 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list costs for book %s: %w", bookID, err)
	}
	defer rows.Close()

	entries := []CostEntry{}
	for rows.Next() {
		var e CostEntry
		var page sql.NullInt64
		if err := rows.Scan(&e.ID, &e.BookID, &e.Operation, &e.Provider, &e.Model,
			&page, &e.InputTokens, &e.OutputTokens, &e.CostUSD, &e.Success,
			&e.ErrorType, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		if page.Valid {
			n := int(page.Int64)
			e.PageNumber = &n
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProviderCost is one row of the per-provider cost rollup.
type ProviderCost struct {
	Provider     string `json:"provider"`
	Calls        int    `json:"calls"`
	FailedCalls  int    `json:"failedCalls"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	CostUSD      string `json:"costUsd"`
}

// CostSummaryByProvider rolls up a book's ledger per provider.
func (s *Store) CostSummaryByProvider(ctx context.Context, bookID string) ([]ProviderCost, error) {
	query := `SELECT provider, COUNT(*),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost_usd), 0)::text
		FROM api_cost_tracking WHERE book_id = $1
		GROUP BY provider ORDER BY provider`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize costs for book %s: %w", bookID, err)
	}
	defer rows.Close()

	summary := []ProviderCost{}
	for rows.Next() {
		var pc ProviderCost
		if err := rows.Scan(&pc.Provider, &pc.Calls, &pc.FailedCalls,
			&pc.InputTokens, &pc.OutputTokens, &pc.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan cost summary: %w", err)
		}
		summary = append(summary, pc)
	}
	return summary, rows.Err()
}

// TotalCost returns a book's total spend as a decimal string.
func (s *Store) TotalCost(ctx context.Context, bookID string) (string, error) {
	var total string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0)::text FROM api_cost_tracking WHERE book_id = $1`,
		bookID).Scan(&total)
	if err != nil {
		return "", fmt.Errorf("failed to total costs for book %s: %w", bookID, err)
	}
	return total, nil
}
