package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/pyqvault/pyqvault/internal/store"
)

// Advisor recommendations.
const (
	RecommendRetryPages = "retry_pages"
	RecommendFullRerun  = "full_rerun"
	RecommendNothing    = "nothing_to_retry"
)

// Estimate is the advisor's answer: what a retry would cost versus a
// full re-extraction.
type Estimate struct {
	Pages            []int  `json:"pages"`
	PageCount        int    `json:"pageCount"`
	EstimatedCostUSD string `json:"estimatedCostUsd"`
	EstimatedTime    string `json:"estimatedTime"`
	FullRunCostUSD   string `json:"fullRunCostUsd"`
	Recommendation   string `json:"recommendation"`
}

// Advisor estimates retry cost and time with a flat per-page rate.
type Advisor struct {
	store          Store
	costPerPage    float64
	secondsPerPage int
}

// NewAdvisor creates a retry advisor.
func NewAdvisor(st Store, costPerPage float64, secondsPerPage int) *Advisor {
	if costPerPage <= 0 {
		costPerPage = 0.10
	}
	if secondsPerPage <= 0 {
		secondsPerPage = 30
	}
	return &Advisor{store: st, costPerPage: costPerPage, secondsPerPage: secondsPerPage}
}

// EstimateRetry prices retrying the given pages of a book. With no
// explicit pages it prices retrying everything failed or partial.
func (a *Advisor) EstimateRetry(ctx context.Context, book *store.Book, pages []int) (*Estimate, error) {
	if pages == nil {
		pages = []int{}
	}
	if len(pages) == 0 {
		bad, err := a.store.ListPagesByStatus(ctx, book.ID,
			store.PageStatusFailed, store.PageStatusPartial)
		if err != nil {
			return nil, err
		}
		for _, p := range bad {
			pages = append(pages, p.PageNumber)
		}
	}

	est := &Estimate{
		Pages:            pages,
		PageCount:        len(pages),
		EstimatedCostUSD: fmt.Sprintf("$%.2f", float64(len(pages))*a.costPerPage),
		EstimatedTime:    (time.Duration(len(pages)*a.secondsPerPage) * time.Second).String(),
		FullRunCostUSD:   fmt.Sprintf("$%.2f", float64(book.PageCount)*a.costPerPage),
	}

	switch {
	case len(pages) == 0:
		est.Recommendation = RecommendNothing
	case book.PageCount > 0 && len(pages) >= book.PageCount:
		est.Recommendation = RecommendFullRerun
	default:
		est.Recommendation = RecommendRetryPages
	}
	return est, nil
}
