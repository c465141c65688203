package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/extract"
	"github.com/pyqvault/pyqvault/internal/jobs"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// RetryPagesRequest is the body for targeted page retries.
type RetryPagesRequest struct {
	PageNumbers []int `json:"pageNumbers,omitempty"`
}

// RetryResponse reports what a retry request queued.
type RetryResponse struct {
	BookID   string            `json:"bookId"`
	Queued   bool              `json:"queued"`
	FullRun  bool              `json:"fullRun"`
	Pages    []int             `json:"pages"`
	Estimate *extract.Estimate `json:"estimate,omitempty"`
}

// RetryBookEndpoint handles POST /api/books/{id}/retry. It queues a
// full extraction run; the book must not already be processing.
type RetryBookEndpoint struct{}

var _ api.Endpoint = (*RetryBookEndpoint)(nil)

func (e *RetryBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/retry", e.handler
}

func (e *RetryBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Retry extraction
//	@Description	Queue a full extraction run for the book
//	@Tags			retry
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		202	{object}	RetryResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/retry [post]
func (e *RetryBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	id := r.PathValue("id")
	if _, ok := loadBookForRetry(w, r, id); !ok {
		return
	}

	queued := submitProcessing(r, id)
	writeJSON(w, http.StatusAccepted, RetryResponse{
		BookID:  id,
		Queued:  queued,
		FullRun: true,
		Pages:   []int{},
	})
}

func (e *RetryBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <book-id>",
		Short: "Re-run the full extraction for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RetryResponse
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RetryPagesEndpoint handles POST /api/books/{id}/retry-pages. An
// explicit page list re-runs just those pages; an empty list retries
// every failed and partial page.
type RetryPagesEndpoint struct{}

var _ api.Endpoint = (*RetryPagesEndpoint)(nil)

func (e *RetryPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/retry-pages", e.handler
}

func (e *RetryPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Retry specific pages
//	@Description	Re-extract an explicit page list, or every failed and partial page when the list is empty
//	@Tags			retry
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Book ID"
//	@Param			body	body		RetryPagesRequest	false	"Pages to retry"
//	@Success		202		{object}	RetryResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/retry-pages [post]
func (e *RetryPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	var req RetryPagesRequest
	if r.Body != nil {
		// An empty body means "retry everything that needs it".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id := r.PathValue("id")
	book, ok := loadBookForRetry(w, r, id)
	if !ok {
		return
	}

	pages, ok := resolveRetryPages(w, r, book, req.PageNumbers)
	if !ok {
		return
	}
	if len(pages) == 0 {
		writeJSON(w, http.StatusOK, RetryResponse{BookID: id, Pages: pages})
		return
	}

	queued := submitRetry(r, id, pages)
	writeJSON(w, http.StatusAccepted, RetryResponse{BookID: id, Queued: queued, Pages: pages})
}

func (e *RetryPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var pages []int
	cmd := &cobra.Command{
		Use:   "retry-pages <book-id>",
		Short: "Retry specific pages of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RetryResponse
			body := RetryPagesRequest{PageNumbers: pages}
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/retry-pages", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntSliceVar(&pages, "pages", nil, "Pages to retry (default: all failed and partial)")
	return cmd
}

// RetrySectionRequest is the body for section retries.
type RetrySectionRequest struct {
	Subject      string `json:"subject"`
	EstimateOnly bool   `json:"estimateOnly,omitempty"`
}

// RetrySectionEndpoint handles POST /api/books/{id}/retry-section.
type RetrySectionEndpoint struct{}

var _ api.Endpoint = (*RetrySectionEndpoint)(nil)

func (e *RetrySectionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/retry-section", e.handler
}

func (e *RetrySectionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Retry one section
//	@Description	Re-extract the failed and partial pages of a single section
//	@Tags			retry
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Book ID"
//	@Param			body	body		RetrySectionRequest	true	"Section subject; set estimateOnly for a dry run"
//	@Success		202		{object}	RetryResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/retry-section [post]
func (e *RetrySectionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	var req RetrySectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	id := r.PathValue("id")
	book, ok := loadBookForRetry(w, r, id)
	if !ok {
		return
	}

	pages, err := svcs.Orchestrator.SectionPages(r.Context(), id, req.Subject)
	if err != nil {
		if errors.Is(err, extract.ErrInvalidState) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	est, err := svcs.Advisor.EstimateRetry(r.Context(), book, pages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.EstimateOnly || len(pages) == 0 {
		writeJSON(w, http.StatusOK, RetryResponse{BookID: id, Pages: pages, Estimate: est})
		return
	}

	queued := submitRetry(r, id, pages)
	writeJSON(w, http.StatusAccepted, RetryResponse{BookID: id, Queued: queued, Pages: pages, Estimate: est})
}

func (e *RetrySectionEndpoint) Command(getServerURL func() string) *cobra.Command {
	var estimateOnly bool
	cmd := &cobra.Command{
		Use:   "retry-section <book-id> <subject>",
		Short: "Retry the bad pages of one section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RetryResponse
			body := RetrySectionRequest{Subject: args[1], EstimateOnly: estimateOnly}
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/retry-section", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&estimateOnly, "estimate-only", false, "Show the cost estimate without retrying")
	return cmd
}

// SmartRetryEndpoint handles POST /api/books/{id}/smart-retry. It
// returns the advisor's recommendation for the cheapest retry; it
// never queues anything. The mutating paths are retry and retry-pages.
type SmartRetryEndpoint struct{}

var _ api.Endpoint = (*SmartRetryEndpoint)(nil)

func (e *SmartRetryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/smart-retry", e.handler
}

func (e *SmartRetryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Smart retry recommendation
//	@Description	Recommend the cheapest retry for every failed and partial page, without mutating anything
//	@Tags			retry
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	extract.Estimate
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/smart-retry [post]
func (e *SmartRetryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	book, err := svcs.Store.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	est, err := svcs.Advisor.EstimateRetry(r.Context(), book, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (e *SmartRetryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "smart-retry <book-id>",
		Short: "Recommend the cheapest retry for a book's bad pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp extract.Estimate
			if err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/smart-retry", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RetryEstimateEndpoint handles GET /api/books/{id}/retry-estimate.
type RetryEstimateEndpoint struct{}

var _ api.Endpoint = (*RetryEstimateEndpoint)(nil)

func (e *RetryEstimateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/retry-estimate", e.handler
}

func (e *RetryEstimateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Estimate retry cost
//	@Description	Price a retry without running it
//	@Tags			retry
//	@Produce		json
//	@Param			id		path		string	true	"Book ID"
//	@Param			pages	query		string	false	"Comma-separated page numbers"
//	@Success		200		{object}	extract.Estimate
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/retry-estimate [get]
func (e *RetryEstimateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	if svcs == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	book, err := svcs.Store.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	var pages []int
	if raw := r.URL.Query().Get("pages"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page number %q", part))
				return
			}
			pages = append(pages, n)
		}
	}

	est, err := svcs.Advisor.EstimateRetry(r.Context(), book, pages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (e *RetryEstimateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-estimate <book-id>",
		Short: "Estimate the cost of retrying a book's bad pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp extract.Estimate
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/retry-estimate", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// retryableStatus reports whether a book in the given upload status may
// be retried. Only terminal books qualify: a pending book has not run
// yet and a processing book already is.
func retryableStatus(status string) bool {
	return status == store.StatusCompleted || status == store.StatusFailed
}

// loadBookForRetry fetches the book and rejects states that cannot be
// retried. Writes the error response itself and reports success.
func loadBookForRetry(w http.ResponseWriter, r *http.Request, id string) (*store.Book, bool) {
	svcs := svcctx.ServicesFrom(r.Context())
	book, err := svcs.Store.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	if book.UploadStatus == store.StatusProcessing {
		writeError(w, http.StatusConflict, "book is already being processed")
		return nil, false
	}
	if !retryableStatus(book.UploadStatus) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot retry a %s book", book.UploadStatus))
		return nil, false
	}
	return book, true
}

// resolveRetryPages validates explicit pages or falls back to every
// failed and partial page.
func resolveRetryPages(w http.ResponseWriter, r *http.Request, book *store.Book, pages []int) ([]int, bool) {
	svcs := svcctx.ServicesFrom(r.Context())

	for _, p := range pages {
		if p < 1 || (book.PageCount > 0 && p > book.PageCount) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("page %d out of range", p))
			return nil, false
		}
	}

	if len(pages) == 0 {
		bad, err := svcs.Store.ListPagesByStatus(r.Context(), book.ID,
			store.PageStatusFailed, store.PageStatusPartial)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return nil, false
		}
		pages = []int{}
		for _, p := range bad {
			pages = append(pages, p.PageNumber)
		}
	}
	return pages, true
}

// submitRetry queues a page retry on the worker pool.
func submitRetry(r *http.Request, bookID string, pages []int) bool {
	svcs := svcctx.ServicesFrom(r.Context())
	err := svcs.Pool.Submit(jobs.Job{
		Name: "retry_pages:" + bookID,
		Run: func(ctx context.Context) {
			_ = svcs.Orchestrator.RetryPages(ctx, bookID, pages)
		},
	})
	if err != nil && svcs.Logger != nil {
		svcs.Logger.Warn("failed to queue retry", "book_id", bookID, "error", err)
	}
	return err == nil
}
