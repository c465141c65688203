package extract

import (
	"context"
	"reflect"
	"testing"

	"github.com/pyqvault/pyqvault/internal/store"
)

// sectionFixture seeds a subject-wise Physics book with 2 pages
// expecting questions 1-4 (two per page).
func sectionFixture(t *testing.T) (*memStore, *store.Book, *Aggregator) {
	t.Helper()

	st := newMemStore()
	book := &store.Book{
		ID:                "book-1",
		ExamName:          "NEET",
		ExamType:          store.ExamTypeSubjectWise,
		Subject:           "Physics",
		ExpectedQuestions: 4,
		PageCount:         2,
	}
	st.addBook(book)
	if err := st.InsertPageStubs(context.Background(), book.ID, []store.PageStub{
		{PageNumber: 1, Subject: "Physics", ExpectedFirst: 1, ExpectedLast: 2},
		{PageNumber: 2, Subject: "Physics", ExpectedFirst: 3, ExpectedLast: 4},
	}); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}

	agg := NewAggregator(st, neetConfig(), nil)
	return st, book, agg
}

func savePage(t *testing.T, st *memStore, bookID string, page int, status string, extracted []int) {
	t.Helper()
	if err := st.SavePageResult(context.Background(), &store.PageResult{
		BookID:           bookID,
		PageNumber:       page,
		Status:           status,
		Subject:          "Physics",
		QuestionsFound:   len(extracted),
		ExtractedNumbers: extracted,
	}); err != nil {
		t.Fatalf("SavePageResult failed: %v", err)
	}
}

func saveQuestions(t *testing.T, st *memStore, bookID string, numbers ...int) {
	t.Helper()
	for _, n := range numbers {
		if err := st.UpsertQuestion(context.Background(), &store.Question{
			BookID:         bookID,
			QuestionNumber: n,
			Subject:        "Physics",
			QuestionText:   "text",
		}); err != nil {
			t.Fatalf("UpsertQuestion failed: %v", err)
		}
	}
}

func TestAggregateComplete(t *testing.T) {
	st, book, agg := sectionFixture(t)
	savePage(t, st, book.ID, 1, store.PageStatusSuccess, []int{1, 2})
	savePage(t, st, book.ID, 2, store.PageStatusSuccess, []int{3, 4})
	saveQuestions(t, st, book.ID, 1, 2, 3, 4)

	sections, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(sections))
	}

	sec := sections[0]
	if sec.Status != store.SectionStatusComplete {
		t.Errorf("status = %q, want complete", sec.Status)
	}
	if sec.QuestionsFound != 4 {
		t.Errorf("found = %d, want 4", sec.QuestionsFound)
	}
	if len(sec.MissingNumbers) != 0 {
		t.Errorf("missing = %v, want none", sec.MissingNumbers)
	}
}

func TestAggregatePartial(t *testing.T) {
	st, book, agg := sectionFixture(t)
	savePage(t, st, book.ID, 1, store.PageStatusSuccess, []int{1, 2})
	savePage(t, st, book.ID, 2, store.PageStatusPartial, []int{3})
	saveQuestions(t, st, book.ID, 1, 2, 3)

	sections, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	sec := sections[0]
	if sec.Status != store.SectionStatusPartial {
		t.Errorf("status = %q, want partial", sec.Status)
	}
	if !reflect.DeepEqual(sec.MissingNumbers, []int{4}) {
		t.Errorf("missing = %v, want [4]", sec.MissingNumbers)
	}
}

func TestAggregateFailed(t *testing.T) {
	st, book, agg := sectionFixture(t)
	savePage(t, st, book.ID, 1, store.PageStatusFailed, nil)
	savePage(t, st, book.ID, 2, store.PageStatusFailed, nil)

	sections, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if sections[0].Status != store.SectionStatusFailed {
		t.Errorf("status = %q, want failed", sections[0].Status)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	st, book, agg := sectionFixture(t)
	savePage(t, st, book.ID, 1, store.PageStatusSuccess, []int{1, 2})
	savePage(t, st, book.ID, 2, store.PageStatusPartial, []int{3})
	saveQuestions(t, st, book.ID, 1, 2, 3)

	first, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("first Aggregate failed: %v", err)
	}
	second, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("second Aggregate failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("aggregation not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}

	// The stored set is replaced, not appended.
	stored, err := st.ListSections(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("ListSections failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored sections = %d, want 1", len(stored))
	}
}

func TestAggregateFullLengthSections(t *testing.T) {
	st := newMemStore()
	book := &store.Book{
		ID:        "book-2",
		ExamName:  "NEET",
		ExamType:  store.ExamTypeFullLength,
		PageCount: 20,
	}
	st.addBook(book)

	plans := PlanSections(book, 20, neetConfig())
	if err := st.InsertPageStubs(context.Background(), book.ID, PageStubs(plans, 20)); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}
	for page := 1; page <= 20; page++ {
		savePage(t, st, book.ID, page, store.PageStatusSuccess, nil)
	}
	// Physics fully extracted; the rest empty.
	for n := 1; n <= 45; n++ {
		if err := st.UpsertQuestion(context.Background(), &store.Question{
			BookID: book.ID, QuestionNumber: n, Subject: "Physics", QuestionText: "text",
		}); err != nil {
			t.Fatalf("UpsertQuestion failed: %v", err)
		}
	}

	agg := NewAggregator(st, neetConfig(), nil)
	sections, err := agg.Aggregate(context.Background(), book)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(sections))
	}

	bySubject := map[string]store.SectionResult{}
	for _, sec := range sections {
		bySubject[sec.Subject] = sec
	}
	if bySubject["Physics"].Status != store.SectionStatusComplete {
		t.Errorf("Physics status = %q, want complete", bySubject["Physics"].Status)
	}
	if bySubject["Chemistry"].Status != store.SectionStatusPartial {
		t.Errorf("Chemistry status = %q, want partial", bySubject["Chemistry"].Status)
	}
	if bySubject["Biology"].QuestionsFound != 0 {
		t.Errorf("Biology found = %d, want 0", bySubject["Biology"].QuestionsFound)
	}
}
