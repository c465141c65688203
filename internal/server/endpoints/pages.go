package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/blob"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// ListPagesResponse is the response for listing page results.
type ListPagesResponse struct {
	Pages []store.PageResult `json:"pages"`
}

// ListPagesEndpoint handles GET /api/books/{id}/pages.
type ListPagesEndpoint struct{}

var _ api.Endpoint = (*ListPagesEndpoint)(nil)

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List page results
//	@Description	List per-page extraction results, optionally filtered by status
//	@Tags			pages
//	@Produce		json
//	@Param			id		path		string	true	"Book ID"
//	@Param			status	query		string	false	"Filter by page status"
//	@Success		200		{object}	ListPagesResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	var (
		pages []store.PageResult
		err   error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		pages, err = st.ListPagesByStatus(r.Context(), id, status)
	} else {
		pages, err = st.ListPages(r.Context(), id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListPagesResponse{Pages: pages})
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <book-id>",
		Short: "List per-page extraction results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListPagesResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PageImageEndpoint handles GET /api/books/{id}/pages/{page}/image.
type PageImageEndpoint struct{}

var _ api.Endpoint = (*PageImageEndpoint)(nil)

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/pages/{page}/image", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get page image
//	@Description	Get the rendered PNG for one page of a book
//	@Tags			pages
//	@Produce		image/png
//	@Param			id		path		string	true	"Book ID"
//	@Param			page	path		int		true	"Page number (1-indexed)"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/pages/{page}/image [get]
func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	blobs := svcctx.BlobsFrom(r.Context())
	if blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "blob store not initialized")
		return
	}

	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	data, err := blobs.Get(r.Context(), blob.PageImageKey(r.PathValue("id"), page))
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("page %d not found", page))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Write(data)
}

func (e *PageImageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
