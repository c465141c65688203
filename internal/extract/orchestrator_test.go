package extract

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

type orchFixture struct {
	store *memStore
	blobs *memBlob
	mock  *providers.MockClient
	orch  *Orchestrator
	book  *store.Book
}

// newOrchFixture seeds a completed Physics book with 2 pages: page 1
// succeeded, page 2 failed.
func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()

	st := newMemStore()
	book := &store.Book{
		ID:                "book-1",
		ExamName:          "NEET",
		ExamType:          store.ExamTypeSubjectWise,
		Subject:           "Physics",
		ExpectedQuestions: 4,
		PageCount:         2,
		UploadStatus:      store.StatusCompleted,
	}
	st.addBook(book)
	if err := st.InsertPageStubs(context.Background(), book.ID, []store.PageStub{
		{PageNumber: 1, Subject: "Physics", ExpectedFirst: 1, ExpectedLast: 2},
		{PageNumber: 2, Subject: "Physics", ExpectedFirst: 3, ExpectedLast: 4},
	}); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}
	savePage(t, st, book.ID, 1, store.PageStatusSuccess, []int{1, 2})
	savePage(t, st, book.ID, 2, store.PageStatusFailed, nil)
	saveQuestions(t, st, book.ID, 1, 2)
	if err := st.UpdateBookProgress(context.Background(), book.ID, 100, "completed"); err != nil {
		t.Fatalf("UpdateBookProgress failed: %v", err)
	}

	blobs := newMemBlob()
	for page := 1; page <= 2; page++ {
		if err := blobs.Put(context.Background(), blob.PageImageKey(book.ID, page), []byte("png")); err != nil {
			t.Fatalf("blob put failed: %v", err)
		}
	}

	mock := providers.NewMock("mockai")
	ledger := &memLedger{}
	cfg := neetConfig()
	cfg.PageConcurrency = 2
	cfg.MaxPageAttempts = 2

	splitter := NewSplitter(st, blobs, 150, 2, nil)
	extractor := NewExtractor(st, blobs, mock, ledger, cfg.MaxPageAttempts, nil)
	aggregator := NewAggregator(st, cfg, nil)
	orch := NewOrchestrator(st, blobs, splitter, extractor, aggregator, cfg, nil)

	return &orchFixture{store: st, blobs: blobs, mock: mock, orch: orch, book: book}
}

func TestRetryPagesRecoversFailedPage(t *testing.T) {
	f := newOrchFixture(t)
	f.mock.Enqueue(visionSuccess(t, q(3, "Q3"), q(4, "Q4")), nil)

	if err := f.orch.RetryPages(context.Background(), f.book.ID, []int{2}); err != nil {
		t.Fatalf("RetryPages failed: %v", err)
	}

	book, _ := f.store.GetBook(context.Background(), f.book.ID)
	if book.UploadStatus != store.StatusCompleted {
		t.Errorf("status = %q, want completed", book.UploadStatus)
	}
	// Progress is monotone: a retry on a finished book stays at 100.
	if book.ExtractionProgress != 100 {
		t.Errorf("progress = %v, want 100", book.ExtractionProgress)
	}
	if book.TotalQuestionsExtracted != 4 {
		t.Errorf("total questions = %d, want 4", book.TotalQuestionsExtracted)
	}

	page, _ := f.store.GetPage(context.Background(), f.book.ID, 2)
	if page.Status != store.PageStatusSuccess {
		t.Errorf("page 2 status = %q, want success", page.Status)
	}
	if page.RetryCount != 1 {
		t.Errorf("page 2 retry count = %d, want 1", page.RetryCount)
	}

	// Sections were re-aggregated and are now complete.
	sections, _ := f.store.ListSections(context.Background(), f.book.ID)
	if len(sections) != 1 || sections[0].Status != store.SectionStatusComplete {
		t.Errorf("sections after retry = %+v", sections)
	}
}

func TestRetryPagesDefaultsToBadPages(t *testing.T) {
	f := newOrchFixture(t)
	f.mock.Enqueue(visionSuccess(t, q(3, "Q3"), q(4, "Q4")), nil)

	if err := f.orch.RetryPages(context.Background(), f.book.ID, nil); err != nil {
		t.Fatalf("RetryPages failed: %v", err)
	}
	if f.mock.CallCount() != 1 {
		t.Errorf("model calls = %d, want 1 (only the failed page)", f.mock.CallCount())
	}
}

func TestRetryPagesRejectsOutOfRange(t *testing.T) {
	f := newOrchFixture(t)
	err := f.orch.RetryPages(context.Background(), f.book.ID, []int{99})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestRetryPagesRejectsPendingBook(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.store.SetBookStatus(context.Background(), f.book.ID, store.StatusPending, ""); err != nil {
		t.Fatalf("SetBookStatus failed: %v", err)
	}

	err := f.orch.RetryPages(context.Background(), f.book.ID, []int{2})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestRetryPagesRejectsProcessingBook(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.store.SetBookStatus(context.Background(), f.book.ID, store.StatusProcessing, ""); err != nil {
		t.Fatalf("SetBookStatus failed: %v", err)
	}

	err := f.orch.RetryPages(context.Background(), f.book.ID, []int{2})
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("expected ErrAlreadyProcessing, got %v", err)
	}
}

func TestConcurrentRunsAreSerialized(t *testing.T) {
	f := newOrchFixture(t)

	// Claim the run slot as a concurrent run would.
	if err := f.orch.begin(f.book.ID); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer f.orch.end(f.book.ID)

	err := f.orch.RetryPages(context.Background(), f.book.ID, []int{2})
	if !errors.Is(err, ErrAlreadyProcessing) {
		t.Errorf("expected ErrAlreadyProcessing, got %v", err)
	}
}

func TestRetryAllPagesFailedMarksBookFailed(t *testing.T) {
	f := newOrchFixture(t)
	// Page 1 is also failed now; both retries fail permanently.
	savePage(t, f.store, f.book.ID, 1, store.PageStatusFailed, nil)
	f.store.questions[f.book.ID] = map[int]*store.Question{}
	f.mock.Enqueue(visionFailure(400))
	f.mock.Enqueue(visionFailure(400))

	if err := f.orch.RetryPages(context.Background(), f.book.ID, nil); err != nil {
		t.Fatalf("RetryPages failed: %v", err)
	}

	book, _ := f.store.GetBook(context.Background(), f.book.ID)
	if book.UploadStatus != store.StatusFailed {
		t.Errorf("status = %q, want failed when no page is usable", book.UploadStatus)
	}
	if book.ErrorMessage == "" {
		t.Error("expected error message on failed book")
	}
}

func TestRetryPagesZeroConcurrencyStillRuns(t *testing.T) {
	st := newMemStore()
	book := &store.Book{
		ID:           "book-3",
		ExamName:     "NEET",
		ExamType:     store.ExamTypeSubjectWise,
		Subject:      "Physics",
		PageCount:    1,
		UploadStatus: store.StatusFailed,
	}
	st.addBook(book)
	if err := st.InsertPageStubs(context.Background(), book.ID, []store.PageStub{
		{PageNumber: 1, Subject: "Physics", ExpectedFirst: 1, ExpectedLast: 2},
	}); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}
	savePage(t, st, book.ID, 1, store.PageStatusFailed, nil)

	blobs := newMemBlob()
	if err := blobs.Put(context.Background(), blob.PageImageKey(book.ID, 1), []byte("png")); err != nil {
		t.Fatalf("blob put failed: %v", err)
	}
	mock := providers.NewMock("mockai")
	mock.Enqueue(visionSuccess(t, q(1, "Q1"), q(2, "Q2")), nil)

	cfg := neetConfig()
	cfg.PageConcurrency = 0

	splitter := NewSplitter(st, blobs, 150, 1, nil)
	extractor := NewExtractor(st, blobs, mock, &memLedger{}, 2, nil)
	aggregator := NewAggregator(st, cfg, nil)
	orch := NewOrchestrator(st, blobs, splitter, extractor, aggregator, cfg, nil)

	if err := orch.RetryPages(context.Background(), book.ID, []int{1}); err != nil {
		t.Fatalf("RetryPages failed: %v", err)
	}
	got, _ := st.GetBook(context.Background(), book.ID)
	if got.UploadStatus != store.StatusCompleted {
		t.Errorf("status = %q, want completed", got.UploadStatus)
	}
}

func TestProcessBookSkipsSplitWhenAlreadySplit(t *testing.T) {
	st := newMemStore()
	book := &store.Book{
		ID:                "book-2",
		ExamName:          "NEET",
		ExamType:          store.ExamTypeSubjectWise,
		Subject:           "Physics",
		ExpectedQuestions: 2,
		PageCount:         1,
		UploadStatus:      store.StatusPending,
	}
	st.addBook(book)
	if err := st.InsertPageStubs(context.Background(), book.ID, []store.PageStub{
		{PageNumber: 1, Subject: "Physics", ExpectedFirst: 1, ExpectedLast: 2},
	}); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}

	blobs := newMemBlob()
	if err := blobs.Put(context.Background(), blob.PageImageKey(book.ID, 1), []byte("png")); err != nil {
		t.Fatalf("blob put failed: %v", err)
	}

	mock := providers.NewMock("mockai")
	mock.Enqueue(visionSuccess(t, q(1, "Q1"), q(2, "Q2")), nil)
	cfg := neetConfig()
	cfg.PageConcurrency = 1
	cfg.MaxPageAttempts = 2

	splitter := NewSplitter(st, blobs, 150, 1, nil)
	extractor := NewExtractor(st, blobs, mock, &memLedger{}, cfg.MaxPageAttempts, nil)
	aggregator := NewAggregator(st, cfg, nil)
	orch := NewOrchestrator(st, blobs, splitter, extractor, aggregator, cfg, nil)

	if err := orch.ProcessBook(context.Background(), book.ID); err != nil {
		t.Fatalf("ProcessBook failed: %v", err)
	}

	got, _ := st.GetBook(context.Background(), book.ID)
	if got.UploadStatus != store.StatusCompleted {
		t.Errorf("status = %q, want completed", got.UploadStatus)
	}
	if got.ExtractionProgress != 100 {
		t.Errorf("progress = %v, want 100", got.ExtractionProgress)
	}
	if got.TotalQuestionsExtracted != 2 {
		t.Errorf("total questions = %d, want 2", got.TotalQuestionsExtracted)
	}
	sections, _ := st.ListSections(context.Background(), book.ID)
	if len(sections) != 1 || sections[0].Status != store.SectionStatusComplete {
		t.Errorf("sections = %+v, want one complete section", sections)
	}
}

func TestProcessBookZeroQuestionsOverallFails(t *testing.T) {
	st := newMemStore()
	book := &store.Book{
		ID:                "book-4",
		ExamName:          "NEET",
		ExamType:          store.ExamTypeSubjectWise,
		Subject:           "Physics",
		ExpectedQuestions: 2,
		PageCount:         1,
		UploadStatus:      store.StatusPending,
	}
	st.addBook(book)
	if err := st.InsertPageStubs(context.Background(), book.ID, []store.PageStub{
		{PageNumber: 1, Subject: "Physics", ExpectedFirst: 1, ExpectedLast: 2},
	}); err != nil {
		t.Fatalf("InsertPageStubs failed: %v", err)
	}

	blobs := newMemBlob()
	if err := blobs.Put(context.Background(), blob.PageImageKey(book.ID, 1), []byte("png")); err != nil {
		t.Fatalf("blob put failed: %v", err)
	}
	mock := providers.NewMock("mockai")
	// Parseable response, zero questions in it.
	mock.Enqueue(visionSuccess(t), nil)

	cfg := neetConfig()
	cfg.PageConcurrency = 1

	splitter := NewSplitter(st, blobs, 150, 1, nil)
	extractor := NewExtractor(st, blobs, mock, &memLedger{}, 2, nil)
	aggregator := NewAggregator(st, cfg, nil)
	orch := NewOrchestrator(st, blobs, splitter, extractor, aggregator, cfg, nil)

	if err := orch.ProcessBook(context.Background(), book.ID); err != nil {
		t.Fatalf("ProcessBook failed: %v", err)
	}

	got, _ := st.GetBook(context.Background(), book.ID)
	if got.UploadStatus != store.StatusFailed {
		t.Errorf("status = %q, want failed when no question was extracted", got.UploadStatus)
	}
	if got.TotalQuestionsExtracted != 0 {
		t.Errorf("total questions = %d, want 0", got.TotalQuestionsExtracted)
	}
	if got.ErrorMessage == "" {
		t.Error("expected error message on failed book")
	}
}

func TestPreviewBookAlreadySplitIsNoOp(t *testing.T) {
	f := newOrchFixture(t)
	if err := f.store.SetBookStatus(context.Background(), f.book.ID, store.StatusPending, ""); err != nil {
		t.Fatalf("SetBookStatus failed: %v", err)
	}

	if err := f.orch.PreviewBook(context.Background(), f.book.ID); err != nil {
		t.Fatalf("PreviewBook failed: %v", err)
	}
	if f.mock.CallCount() != 0 {
		t.Errorf("model calls = %d, want 0", f.mock.CallCount())
	}
}

func TestSectionPages(t *testing.T) {
	f := newOrchFixture(t)

	pages, err := f.orch.SectionPages(context.Background(), f.book.ID, "Physics")
	if err != nil {
		t.Fatalf("SectionPages failed: %v", err)
	}
	if !reflect.DeepEqual(pages, []int{2}) {
		t.Errorf("pages = %v, want [2]", pages)
	}

	if _, err := f.orch.SectionPages(context.Background(), f.book.ID, "Chemistry"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState for unknown section, got %v", err)
	}
}
