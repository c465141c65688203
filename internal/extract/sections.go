package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Aggregator derives section results from stored pages and questions.
// It is a pure rollup: running it again over the same rows produces the
// same sections, and each run fully replaces the previous set.
type Aggregator struct {
	store Store
	cfg   config.ExtractionConfig
	log   *slog.Logger
}

// NewAggregator creates a section aggregator.
func NewAggregator(st Store, cfg config.ExtractionConfig, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{store: st, cfg: cfg, log: log.With("component", "aggregator")}
}

// Aggregate recomputes and stores a book's section results.
func (a *Aggregator) Aggregate(ctx context.Context, book *store.Book) ([]store.SectionResult, error) {
	plans := PlanSections(book, book.PageCount, a.cfg)
	if len(plans) == 0 {
		return nil, fmt.Errorf("book %s has no pages to aggregate", book.ID)
	}

	pages, err := a.store.ListPages(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	numbersBySubject, err := a.store.QuestionNumbersBySubject(ctx, book.ID)
	if err != nil {
		return nil, err
	}

	sections := make([]store.SectionResult, 0, len(plans))
	for _, plan := range plans {
		sections = append(sections, a.buildSection(book.ID, plan, pages, numbersBySubject))
	}

	if err := a.store.ReplaceSections(ctx, book.ID, sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// buildSection rolls one planned section up from its pages and the
// questions recorded in its number range.
func (a *Aggregator) buildSection(bookID string, plan SectionPlan, pages []store.PageResult, numbersBySubject map[string][]int) store.SectionResult {
	found := map[int]bool{}
	for _, n := range numbersBySubject[plan.Subject] {
		if n >= plan.FirstQuestion && n <= plan.LastQuestion {
			found[n] = true
		}
	}

	missing := []int{}
	for n := plan.FirstQuestion; n <= plan.LastQuestion; n++ {
		if !found[n] {
			missing = append(missing, n)
		}
	}

	sectionPages := 0
	failedPages := 0
	for _, p := range pages {
		if p.PageNumber < plan.StartPage || p.PageNumber > plan.EndPage {
			continue
		}
		sectionPages++
		if p.Status == store.PageStatusFailed {
			failedPages++
		}
	}

	status := store.SectionStatusPartial
	switch {
	case len(missing) == 0:
		status = store.SectionStatusComplete
	case sectionPages > 0 && failedPages == sectionPages:
		status = store.SectionStatusFailed
	}

	return store.SectionResult{
		BookID:            bookID,
		Subject:           plan.Subject,
		StartPage:         plan.StartPage,
		EndPage:           plan.EndPage,
		ExpectedQuestions: plan.ExpectedQuestions(),
		QuestionsFound:    len(found),
		MissingNumbers:    missing,
		Status:            status,
	}
}
