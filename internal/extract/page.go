package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Standard marking scheme applied to extracted questions. NEET and the
// JEE papers this pipeline ingests award +4 and deduct 1.
const (
	defaultMarksPositive = 4
	defaultMarksNegative = 1
)

// Extractor runs the vision model over single pages and persists the
// outcome. Transient model failures are retried with backoff; every
// attempt lands in the cost ledger.
type Extractor struct {
	store       Store
	blobs       blob.Store
	vision      providers.VisionClient
	ledger      Ledger
	maxAttempts int
	log         *slog.Logger
}

// NewExtractor creates a page extractor.
func NewExtractor(st Store, blobs blob.Store, vision providers.VisionClient, ledger Ledger, maxAttempts int, log *slog.Logger) *Extractor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		store:       st,
		blobs:       blobs,
		vision:      vision,
		ledger:      ledger,
		maxAttempts: maxAttempts,
		log:         log.With("component", "extractor"),
	}
}

// ExtractPage extracts one page and upserts its result row. The
// returned row reflects the outcome even when the model call failed;
// the error is non-nil only when nothing useful could be recorded.
func (e *Extractor) ExtractPage(ctx context.Context, book *store.Book, pageNumber int) (*store.PageResult, error) {
	prior, err := e.store.GetPage(ctx, book.ID, pageNumber)
	if err != nil {
		return nil, fmt.Errorf("page %d has no pending row: %w", pageNumber, err)
	}

	result := &store.PageResult{
		BookID:        book.ID,
		PageNumber:    pageNumber,
		Subject:       prior.Subject,
		ExpectedFirst: prior.ExpectedFirst,
		ExpectedLast:  prior.ExpectedLast,
	}

	// A pending row means this is the first attempt; anything else is a
	// retry of an earlier outcome.
	if prior.Status == store.PageStatusPending {
		result.RetryCount = 0
	} else {
		result.RetryCount = prior.RetryCount + 1
		now := time.Now().UTC()
		result.LastRetryAt = &now
	}

	img, err := e.blobs.Get(ctx, blob.PageImageKey(book.ID, pageNumber))
	if err != nil {
		result.Status = store.PageStatusFailed
		result.ErrorMessage = fmt.Sprintf("page image unavailable: %v", err)
		if saveErr := e.store.SavePageResult(ctx, result); saveErr != nil {
			return nil, saveErr
		}
		return result, nil
	}

	start := time.Now()
	res, callErr := e.callModel(ctx, book.ID, pageNumber, prior, img)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()

	if res != nil {
		result.Provider = res.Provider
		result.Model = res.ModelUsed
		result.InputTokens = res.InputTokens
		result.OutputTokens = res.OutputTokens
		result.APICostUSD = fmt.Sprintf("%.6f", res.CostUSD)
	}

	if callErr != nil {
		result.Status = store.PageStatusFailed
		result.ErrorMessage = callErr.Error()
		if err := e.store.SavePageResult(ctx, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	var extraction PageExtraction
	if err := json.Unmarshal(res.ParsedJSON, &extraction); err != nil {
		result.Status = store.PageStatusFailed
		result.ErrorMessage = fmt.Sprintf("unparseable extraction output: %v", err)
		if err := e.store.SavePageResult(ctx, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := e.persistQuestions(ctx, book, prior, &extraction, result); err != nil {
		return nil, err
	}

	if err := e.store.SavePageResult(ctx, result); err != nil {
		return nil, err
	}
	// Totals are recomputed from stored questions, never incremented, so
	// a retried page cannot double count.
	if err := e.store.RecountBookTotals(ctx, book.ID); err != nil {
		e.log.Error("failed to recount totals", "book_id", book.ID, "error", err)
	}

	return result, nil
}

// callModel performs the vision call with transient-error retry. Every
// attempt is recorded in the cost ledger.
func (e *Extractor) callModel(ctx context.Context, bookID string, pageNumber int, prior *store.PageResult, img []byte) (*providers.VisionResult, error) {
	req := &providers.VisionRequest{
		System:      pageSystemPrompt,
		Prompt:      buildPagePrompt(prior.Subject, prior.ExpectedFirst, prior.ExpectedLast),
		Images:      [][]byte{img},
		MaxTokens:   8192,
		Temperature: 0,
		Schema:      pageSchema,
	}

	var last *providers.VisionResult
	err := retry.Do(
		func() error {
			res, err := e.vision.Vision(ctx, req)
			if res != nil {
				last = res
				e.ledger.RecordVision(ctx, bookID, store.OpPageExtraction, &pageNumber, res)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.maxAttempts)),
		retry.RetryIf(providers.IsTransient),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(250*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			e.log.Warn("retrying page extraction",
				"book_id", bookID, "page", pageNumber,
				"attempt", attempt+1, "error", err)
		}),
	)
	if err != nil {
		return last, err
	}
	return last, nil
}

// persistQuestions upserts the extracted questions and fills the
// result's coverage fields and status.
func (e *Extractor) persistQuestions(ctx context.Context, book *store.Book, prior *store.PageResult, extraction *PageExtraction, result *store.PageResult) error {
	seen := map[int]bool{}
	extracted := []int{}

	for _, q := range extraction.Questions {
		if q.QuestionNumber <= 0 || seen[q.QuestionNumber] {
			continue
		}
		seen[q.QuestionNumber] = true
		extracted = append(extracted, q.QuestionNumber)

		subject := q.Subject
		if subject == "" {
			subject = prior.Subject
		}
		if err := e.store.UpsertQuestion(ctx, &store.Question{
			BookID:         book.ID,
			QuestionNumber: q.QuestionNumber,
			Subject:        subject,
			Topic:          q.Topic,
			ExamYear:       book.ExamYear,
			ExamType:       book.ExamType,
			QuestionText:   q.QuestionText,
			Options:        q.Options,
			CorrectAnswer:  q.CorrectAnswer,
			Explanation:    q.Explanation,
			MarksPositive:  defaultMarksPositive,
			MarksNegative:  defaultMarksNegative,
			Difficulty:     q.Difficulty,
			IsActive:       true,
			DiagramData:    q.DiagramData,
			PageNumber:     result.PageNumber,
		}); err != nil {
			return err
		}
	}
	sort.Ints(extracted)

	result.QuestionsFound = len(extracted)
	result.ExtractedNumbers = extracted
	result.MissingNumbers = missingInRange(extracted, prior.ExpectedFirst, prior.ExpectedLast)

	// Success requires at least one question: a parseable response with
	// nothing in it is a failed page, not an empty success.
	switch {
	case len(extracted) == 0:
		result.Status = store.PageStatusFailed
		result.ErrorMessage = "model returned no questions"
	case len(result.MissingNumbers) > 0:
		result.Status = store.PageStatusPartial
	default:
		result.Status = store.PageStatusSuccess
	}
	return nil
}

// missingInRange returns the numbers in [first, last] not present in
// extracted. An unknown range (first <= 0) reports nothing missing.
func missingInRange(extracted []int, first, last int) []int {
	missing := []int{}
	if first <= 0 || last < first {
		return missing
	}

	have := make(map[int]bool, len(extracted))
	for _, n := range extracted {
		have[n] = true
	}
	for n := first; n <= last; n++ {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return missing
}
