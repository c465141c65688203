package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	books     map[string]*store.Book
	pages     map[string]map[int]*store.PageResult
	sections  map[string][]store.SectionResult
	questions map[string]map[int]*store.Question
	nextID    int64
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		books:     map[string]*store.Book{},
		pages:     map[string]map[int]*store.PageResult{},
		sections:  map[string][]store.SectionResult{},
		questions: map[string]map[int]*store.Question{},
	}
}

func (m *memStore) addBook(b *store.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.UploadStatus == "" {
		b.UploadStatus = store.StatusPending
	}
	copied := *b
	m.books[b.ID] = &copied
	m.pages[b.ID] = map[int]*store.PageResult{}
	m.questions[b.ID] = map[int]*store.Question{}
}

func (m *memStore) removeBook(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	delete(m.pages, id)
	delete(m.questions, id)
}

func (m *memStore) GetBook(_ context.Context, id string) (*store.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *memStore) FindBookByHash(_ context.Context, hash string) (*store.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ContentHash == hash {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindBookByIdentity(_ context.Context, examName string, examYear int) (*store.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if strings.EqualFold(b.ExamName, examName) && b.ExamYear == examYear {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) SetBookStatus(_ context.Context, id, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	b.UploadStatus = status
	if status == store.StatusFailed {
		b.ErrorMessage = errMsg
	} else {
		b.ErrorMessage = ""
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) SetBookPageCount(_ context.Context, id string, pages int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	b.PageCount = pages
	return nil
}

func (m *memStore) UpdateBookProgress(_ context.Context, id string, progress float64, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	if progress > b.ExtractionProgress {
		b.ExtractionProgress = progress
	}
	b.CurrentStep = step
	b.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) RecountBookTotals(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	b.TotalQuestionsExtracted = len(m.questions[id])
	return nil
}

func (m *memStore) InsertPageStubs(_ context.Context, bookID string, stubs []store.PageStub) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages[bookID] == nil {
		m.pages[bookID] = map[int]*store.PageResult{}
	}
	for _, stub := range stubs {
		if _, exists := m.pages[bookID][stub.PageNumber]; exists {
			continue
		}
		m.nextID++
		m.pages[bookID][stub.PageNumber] = &store.PageResult{
			ID:               m.nextID,
			BookID:           bookID,
			PageNumber:       stub.PageNumber,
			Status:           store.PageStatusPending,
			Subject:          stub.Subject,
			ExpectedFirst:    stub.ExpectedFirst,
			ExpectedLast:     stub.ExpectedLast,
			ExtractedNumbers: []int{},
			MissingNumbers:   []int{},
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
	}
	return nil
}

func (m *memStore) SavePageResult(_ context.Context, p *store.PageResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages[p.BookID] == nil {
		m.pages[p.BookID] = map[int]*store.PageResult{}
	}
	copied := *p
	if copied.ExtractedNumbers == nil {
		copied.ExtractedNumbers = []int{}
	}
	if copied.MissingNumbers == nil {
		copied.MissingNumbers = []int{}
	}
	if existing, ok := m.pages[p.BookID][p.PageNumber]; ok {
		copied.ID = existing.ID
		copied.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		copied.ID = m.nextID
		copied.CreatedAt = time.Now()
	}
	copied.UpdatedAt = time.Now()
	m.pages[p.BookID][p.PageNumber] = &copied
	p.ID = copied.ID
	return nil
}

func (m *memStore) GetPage(_ context.Context, bookID string, pageNumber int) (*store.PageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[bookID][pageNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memStore) ListPages(_ context.Context, bookID string) ([]store.PageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPagesLocked(bookID, nil), nil
}

func (m *memStore) ListPagesByStatus(_ context.Context, bookID string, statuses ...string) ([]store.PageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := map[string]bool{}
	for _, s := range statuses {
		match[s] = true
	}
	return m.listPagesLocked(bookID, match), nil
}

func (m *memStore) listPagesLocked(bookID string, statuses map[string]bool) []store.PageResult {
	pages := []store.PageResult{}
	for _, p := range m.pages[bookID] {
		if statuses != nil && !statuses[p.Status] {
			continue
		}
		pages = append(pages, *p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages
}

func (m *memStore) CountPagesByStatus(_ context.Context, bookID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, p := range m.pages[bookID] {
		counts[p.Status]++
	}
	return counts, nil
}

func (m *memStore) ReplaceSections(_ context.Context, bookID string, sections []store.SectionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]store.SectionResult, len(sections))
	copy(copied, sections)
	m.sections[bookID] = copied
	return nil
}

func (m *memStore) ListSections(_ context.Context, bookID string) ([]store.SectionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sections := make([]store.SectionResult, len(m.sections[bookID]))
	copy(sections, m.sections[bookID])
	return sections, nil
}

func (m *memStore) UpsertQuestion(_ context.Context, q *store.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.questions[q.BookID] == nil {
		m.questions[q.BookID] = map[int]*store.Question{}
	}
	copied := *q
	m.questions[q.BookID][q.QuestionNumber] = &copied
	return nil
}

func (m *memStore) CountQuestions(_ context.Context, bookID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions[bookID]), nil
}

func (m *memStore) QuestionNumbersBySubject(_ context.Context, bookID string) (map[string][]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bySubject := map[string][]int{}
	for _, q := range m.questions[bookID] {
		bySubject[q.Subject] = append(bySubject[q.Subject], q.QuestionNumber)
	}
	for subject := range bySubject {
		sort.Ints(bySubject[subject])
	}
	return bySubject, nil
}

// memLedger records cost entries in memory.
type memLedger struct {
	mu      sync.Mutex
	entries []store.CostEntry
}

var _ Ledger = (*memLedger)(nil)

func (l *memLedger) RecordVision(_ context.Context, bookID, operation string, pageNumber *int, res *providers.VisionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := store.CostEntry{
		BookID:       bookID,
		Operation:    operation,
		Provider:     res.Provider,
		Model:        res.ModelUsed,
		PageNumber:   pageNumber,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		CostUSD:      fmt.Sprintf("%.6f", res.CostUSD),
		Success:      res.Success,
		ErrorType:    res.ErrorType,
	}
	l.entries = append(l.entries, entry)
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *memLedger) byOperation(op string) []store.CostEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := []store.CostEntry{}
	for _, e := range l.entries {
		if e.Operation == op {
			entries = append(entries, e)
		}
	}
	return entries
}

// memBlob is an in-memory blob store.
type memBlob struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlob() *memBlob {
	return &memBlob{data: map[string][]byte{}}
}

func (b *memBlob) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	b.data[key] = copied
	return nil
}

func (b *memBlob) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return data, nil
}

func (b *memBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBlob) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			delete(b.data, key)
		}
	}
	return nil
}
