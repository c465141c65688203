package extract

import (
	"strings"

	"github.com/pyqvault/pyqvault/internal/config"
	"github.com/pyqvault/pyqvault/internal/store"
)

// SectionPlan is one contiguous slice of a paper: the subject it
// covers, its page range and its question number range.
type SectionPlan struct {
	Subject       string
	StartPage     int
	EndPage       int
	FirstQuestion int
	LastQuestion  int
}

// ExpectedQuestions returns how many questions the plan covers.
func (p SectionPlan) ExpectedQuestions() int {
	if p.LastQuestion < p.FirstQuestion {
		return 0
	}
	return p.LastQuestion - p.FirstQuestion + 1
}

// PlanSections derives the section layout for a book. Full-length
// papers with a configured layout get one section per subject, pages
// split proportionally to expected question counts. Everything else is
// a single section spanning the whole paper.
func PlanSections(book *store.Book, pageCount int, cfg config.ExtractionConfig) []SectionPlan {
	if pageCount <= 0 {
		return nil
	}

	layout := cfg.SectionLayouts[strings.ToLower(strings.TrimSpace(book.ExamName))]
	if book.ExamType != store.ExamTypeFullLength || len(layout) == 0 {
		expected := book.ExpectedQuestions
		if expected <= 0 {
			expected = cfg.DefaultSectionQuestions
		}
		subject := book.Subject
		if subject == "" {
			subject = "General"
		}
		return []SectionPlan{{
			Subject:       subject,
			StartPage:     1,
			EndPage:       pageCount,
			FirstQuestion: 1,
			LastQuestion:  expected,
		}}
	}

	totalQuestions := 0
	for _, sec := range layout {
		totalQuestions += sec.ExpectedQuestions
	}

	plans := make([]SectionPlan, 0, len(layout))
	nextPage := 1
	nextQuestion := 1
	questionsSoFar := 0
	for i, sec := range layout {
		questionsSoFar += sec.ExpectedQuestions

		// Last section takes the remaining pages so rounding can never
		// leave a page unassigned.
		endPage := pageCount
		if i < len(layout)-1 {
			endPage = pageCount * questionsSoFar / totalQuestions
			if endPage < nextPage {
				endPage = nextPage
			}
		}

		plans = append(plans, SectionPlan{
			Subject:       sec.Subject,
			StartPage:     nextPage,
			EndPage:       endPage,
			FirstQuestion: nextQuestion,
			LastQuestion:  nextQuestion + sec.ExpectedQuestions - 1,
		})
		nextPage = endPage + 1
		nextQuestion += sec.ExpectedQuestions

		if nextPage > pageCount {
			break
		}
	}
	return plans
}

// PageStubs expands section plans into one pending row per page. Each
// page gets its section's subject and a proportional share of the
// section's question number range.
func PageStubs(plans []SectionPlan, pageCount int) []store.PageStub {
	stubs := make([]store.PageStub, 0, pageCount)

	planFor := func(page int) *SectionPlan {
		for i := range plans {
			if page >= plans[i].StartPage && page <= plans[i].EndPage {
				return &plans[i]
			}
		}
		return nil
	}

	for page := 1; page <= pageCount; page++ {
		stub := store.PageStub{PageNumber: page}
		if plan := planFor(page); plan != nil {
			stub.Subject = plan.Subject
			stub.ExpectedFirst, stub.ExpectedLast = pageRange(plan, page)
		}
		stubs = append(stubs, stub)
	}
	return stubs
}

// pageRange splits a plan's question range evenly across its pages and
// returns the share for one page. Pages with no share report (0, 0).
func pageRange(plan *SectionPlan, page int) (int, int) {
	pages := plan.EndPage - plan.StartPage + 1
	questions := plan.ExpectedQuestions()
	if pages <= 0 || questions <= 0 {
		return 0, 0
	}

	idx := page - plan.StartPage
	first := plan.FirstQuestion + idx*questions/pages
	last := plan.FirstQuestion + (idx+1)*questions/pages - 1
	if last < first {
		return 0, 0
	}
	return first, last
}
