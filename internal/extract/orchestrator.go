package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Orchestration errors surfaced to the API layer.
var (
	// ErrAlreadyProcessing means a run is active for the book.
	ErrAlreadyProcessing = errors.New("book is already being processed")
	// ErrInvalidState means the book's status does not allow the
	// requested transition.
	ErrInvalidState = errors.New("operation not allowed in current status")
)

// Progress milestones for the full pipeline. Page extraction fills the
// span between extractStart and aggregateStart.
const (
	progressSplitStart     = 5.0
	progressExtractStart   = 15.0
	progressAggregateStart = 92.0
	progressDone           = 100.0
)

// Orchestrator drives a book through the extraction state machine:
// pending -> processing -> completed | failed. It serializes runs per
// book and extractions per page.
type Orchestrator struct {
	store      Store
	blobs      blob.Store
	splitter   *Splitter
	extractor  *Extractor
	aggregator *Aggregator
	cfg        config.ExtractionConfig
	log        *slog.Logger

	mu        sync.Mutex
	running   map[string]bool
	pageLocks map[string]*sync.Mutex
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(st Store, blobs blob.Store, splitter *Splitter, extractor *Extractor, aggregator *Aggregator, cfg config.ExtractionConfig, log *slog.Logger) *Orchestrator {
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		blobs:      blobs,
		splitter:   splitter,
		extractor:  extractor,
		aggregator: aggregator,
		cfg:        cfg,
		log:        log.With("component", "orchestrator"),
		running:    map[string]bool{},
		pageLocks:  map[string]*sync.Mutex{},
	}
}

// begin claims the per-book run slot.
func (o *Orchestrator) begin(bookID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[bookID] {
		return ErrAlreadyProcessing
	}
	o.running[bookID] = true
	return nil
}

// end releases the per-book run slot.
func (o *Orchestrator) end(bookID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, bookID)
}

// pageLock returns the mutex serializing extraction of one page.
func (o *Orchestrator) pageLock(bookID string, page int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", bookID, page)
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.pageLocks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	o.pageLocks[key] = l
	return l
}

// ProcessBook runs the full pipeline for a pending or failed book.
func (o *Orchestrator) ProcessBook(ctx context.Context, bookID string) error {
	if err := o.begin(bookID); err != nil {
		return err
	}
	defer o.end(bookID)

	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book.UploadStatus == store.StatusProcessing {
		return ErrAlreadyProcessing
	}

	if err := o.store.SetBookStatus(ctx, bookID, store.StatusProcessing, ""); err != nil {
		return err
	}

	if err := o.runFull(ctx, book); err != nil {
		o.log.Error("extraction failed", "book_id", bookID, "error", err)
		if setErr := o.store.SetBookStatus(ctx, bookID, store.StatusFailed, err.Error()); setErr != nil {
			o.log.Error("failed to record failure", "book_id", bookID, "error", setErr)
		}
		return err
	}

	return o.finalize(ctx, bookID)
}

// runFull splits, extracts and aggregates one book. A book split
// earlier (preview or a prior run) keeps its page images and stubs.
func (o *Orchestrator) runFull(ctx context.Context, book *store.Book) error {
	pageCount := book.PageCount
	if pageCount == 0 {
		o.progress(ctx, book.ID, progressSplitStart, "splitting_pdf")

		pdf, err := o.blobs.Get(ctx, blob.BookPDFKey(book.ID))
		if err != nil {
			return fmt.Errorf("source PDF unavailable: %w", err)
		}

		pageCount, err = o.splitter.Split(ctx, book, pdf, func(n int) []SectionPlan {
			return PlanSections(book, n, o.cfg)
		})
		if err != nil {
			return fmt.Errorf("failed to split PDF: %w", err)
		}
	}
	book.PageCount = pageCount

	o.progress(ctx, book.ID, progressExtractStart, "extracting_pages")

	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = i + 1
	}
	if err := o.extractPages(ctx, book, pages); err != nil {
		return err
	}

	o.progress(ctx, book.ID, progressAggregateStart, "aggregating_sections")
	if _, err := o.aggregator.Aggregate(ctx, book); err != nil {
		return fmt.Errorf("failed to aggregate sections: %w", err)
	}
	return nil
}

// extractPages runs the extractor over the given pages with bounded
// concurrency, advancing progress as pages finish. A failed model call
// is a recorded page outcome, not a run failure.
func (o *Orchestrator) extractPages(ctx context.Context, book *store.Book, pages []int) error {
	if len(pages) == 0 {
		return nil
	}

	var done atomic.Int64
	total := int64(len(pages))
	span := progressAggregateStart - progressExtractStart

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.PageConcurrency)
	for _, page := range pages {
		g.Go(func() error {
			lock := o.pageLock(book.ID, page)
			lock.Lock()
			defer lock.Unlock()

			if _, err := o.extractor.ExtractPage(gctx, book, page); err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}

			n := done.Add(1)
			progress := progressExtractStart + span*float64(n)/float64(total)
			o.progress(gctx, book.ID, progress, "extracting_pages")
			return nil
		})
	}
	return g.Wait()
}

// PreviewBook splits a book into page images and pending page rows
// without extracting anything. The book stays pending so a later full
// run picks up the existing split; a split failure fails the book.
func (o *Orchestrator) PreviewBook(ctx context.Context, bookID string) error {
	if err := o.begin(bookID); err != nil {
		return err
	}
	defer o.end(bookID)

	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book.UploadStatus == store.StatusProcessing {
		return ErrAlreadyProcessing
	}
	if book.PageCount > 0 {
		return nil
	}

	pdf, err := o.blobs.Get(ctx, blob.BookPDFKey(bookID))
	if err != nil {
		return fmt.Errorf("source PDF unavailable: %w", err)
	}

	if _, err := o.splitter.Split(ctx, book, pdf, func(n int) []SectionPlan {
		return PlanSections(book, n, o.cfg)
	}); err != nil {
		o.log.Error("preview split failed", "book_id", bookID, "error", err)
		if setErr := o.store.SetBookStatus(ctx, bookID, store.StatusFailed, err.Error()); setErr != nil {
			o.log.Error("failed to record failure", "book_id", bookID, "error", setErr)
		}
		return err
	}
	return nil
}

// RetryPages re-extracts the given pages and re-aggregates. With no
// explicit pages every failed or partial page is retried.
func (o *Orchestrator) RetryPages(ctx context.Context, bookID string, pages []int) error {
	if err := o.begin(bookID); err != nil {
		return err
	}
	defer o.end(bookID)

	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	switch book.UploadStatus {
	case store.StatusCompleted, store.StatusFailed:
	case store.StatusProcessing:
		return ErrAlreadyProcessing
	default:
		return fmt.Errorf("%w: cannot retry a %s book", ErrInvalidState, book.UploadStatus)
	}

	if len(pages) == 0 {
		bad, err := o.store.ListPagesByStatus(ctx, bookID,
			store.PageStatusFailed, store.PageStatusPartial)
		if err != nil {
			return err
		}
		for _, p := range bad {
			pages = append(pages, p.PageNumber)
		}
	}
	if len(pages) == 0 {
		return nil
	}
	for _, p := range pages {
		if p < 1 || (book.PageCount > 0 && p > book.PageCount) {
			return fmt.Errorf("%w: page %d out of range", ErrInvalidState, p)
		}
	}

	if err := o.store.SetBookStatus(ctx, bookID, store.StatusProcessing, ""); err != nil {
		return err
	}

	run := func() error {
		o.progress(ctx, bookID, progressExtractStart, "retrying_pages")
		if err := o.extractPages(ctx, book, pages); err != nil {
			return err
		}
		o.progress(ctx, bookID, progressAggregateStart, "aggregating_sections")
		if _, err := o.aggregator.Aggregate(ctx, book); err != nil {
			return fmt.Errorf("failed to aggregate sections: %w", err)
		}
		return nil
	}

	if err := run(); err != nil {
		o.log.Error("retry failed", "book_id", bookID, "error", err)
		if setErr := o.store.SetBookStatus(ctx, bookID, store.StatusFailed, err.Error()); setErr != nil {
			o.log.Error("failed to record failure", "book_id", bookID, "error", setErr)
		}
		return err
	}

	return o.finalize(ctx, bookID)
}

// SectionPages returns the failed or partial page numbers inside the
// named section of a book.
func (o *Orchestrator) SectionPages(ctx context.Context, bookID, subject string) ([]int, error) {
	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	var plan *SectionPlan
	for _, p := range PlanSections(book, book.PageCount, o.cfg) {
		if p.Subject == subject {
			plan = &p
			break
		}
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: book has no %q section", ErrInvalidState, subject)
	}

	bad, err := o.store.ListPagesByStatus(ctx, bookID,
		store.PageStatusFailed, store.PageStatusPartial)
	if err != nil {
		return nil, err
	}

	pages := []int{}
	for _, p := range bad {
		if p.PageNumber >= plan.StartPage && p.PageNumber <= plan.EndPage {
			pages = append(pages, p.PageNumber)
		}
	}
	return pages, nil
}

// finalize moves the book to its terminal status. Completion requires
// at least one usable page and at least one extracted question overall;
// a partially failed book still completes.
func (o *Orchestrator) finalize(ctx context.Context, bookID string) error {
	counts, err := o.store.CountPagesByStatus(ctx, bookID)
	if err != nil {
		return err
	}
	total, err := o.store.CountQuestions(ctx, bookID)
	if err != nil {
		return err
	}

	usable := counts[store.PageStatusSuccess] + counts[store.PageStatusPartial]
	if usable == 0 || total == 0 {
		msg := "no pages extracted"
		if usable > 0 {
			msg = "no questions extracted"
		}
		if err := o.store.SetBookStatus(ctx, bookID, store.StatusFailed, msg); err != nil {
			return err
		}
		o.progress(ctx, bookID, progressDone, "failed")
		return nil
	}

	if err := o.store.SetBookStatus(ctx, bookID, store.StatusCompleted, ""); err != nil {
		return err
	}
	o.progress(ctx, bookID, progressDone, "completed")
	return nil
}

// progress records a progress update; failures are logged, never fatal.
func (o *Orchestrator) progress(ctx context.Context, bookID string, value float64, step string) {
	if err := o.store.UpdateBookProgress(ctx, bookID, value, step); err != nil && ctx.Err() == nil {
		o.log.Warn("failed to update progress", "book_id", bookID, "step", step, "error", err)
	}
}
