// Package extract implements the exam paper pipeline: duplicate
// detection, metadata inference, PDF splitting, per-page question
// extraction, section aggregation and retry orchestration.
package extract

import (
	"context"

	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Store is the persistence surface the pipeline needs. *store.Store
// satisfies it; tests use an in-memory fake.
type Store interface {
	GetBook(ctx context.Context, id string) (*store.Book, error)
	FindBookByHash(ctx context.Context, hash string) (*store.Book, error)
	FindBookByIdentity(ctx context.Context, examName string, examYear int) (*store.Book, error)
	SetBookStatus(ctx context.Context, id, status, errMsg string) error
	SetBookPageCount(ctx context.Context, id string, pages int) error
	UpdateBookProgress(ctx context.Context, id string, progress float64, step string) error
	RecountBookTotals(ctx context.Context, id string) error

	InsertPageStubs(ctx context.Context, bookID string, stubs []store.PageStub) error
	SavePageResult(ctx context.Context, p *store.PageResult) error
	GetPage(ctx context.Context, bookID string, pageNumber int) (*store.PageResult, error)
	ListPages(ctx context.Context, bookID string) ([]store.PageResult, error)
	ListPagesByStatus(ctx context.Context, bookID string, statuses ...string) ([]store.PageResult, error)
	CountPagesByStatus(ctx context.Context, bookID string) (map[string]int, error)

	ReplaceSections(ctx context.Context, bookID string, sections []store.SectionResult) error
	ListSections(ctx context.Context, bookID string) ([]store.SectionResult, error)

	UpsertQuestion(ctx context.Context, q *store.Question) error
	CountQuestions(ctx context.Context, bookID string) (int, error)
	QuestionNumbersBySubject(ctx context.Context, bookID string) (map[string][]int, error)
}

var _ Store = (*store.Store)(nil)

// Ledger records model call costs. *costs.Recorder satisfies it.
type Ledger interface {
	RecordVision(ctx context.Context, bookID, operation string, pageNumber *int, res *providers.VisionResult)
}
