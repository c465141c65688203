package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// UpdateBookResponse is the response for a book update.
type UpdateBookResponse struct {
	Book   *store.Book `json:"book"`
	Queued bool        `json:"queued,omitempty"`
}

// UpdateBookEndpoint handles PATCH /api/books/{id}. It corrects
// detected metadata and can kick off extraction for a pending book.
type UpdateBookEndpoint struct{}

var _ api.Endpoint = (*UpdateBookEndpoint)(nil)

func (e *UpdateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/books/{id}", e.handler
}

func (e *UpdateBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update book metadata
//	@Description	Update exam metadata fields; optionally start extraction
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Book ID"
//	@Param			body	body		map[string]any	true	"Fields to update; set startProcessing to true to queue extraction"
//	@Success		200		{object}	UpdateBookResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id} [patch]
func (e *UpdateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	startProcessing, _ := fields["startProcessing"].(bool)
	delete(fields, "startProcessing")

	if len(fields) > 0 {
		if err := st.UpdateBookFields(r.Context(), id, fields); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "book not found")
			case strings.Contains(err.Error(), "cannot be updated"):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
	}

	book, err := st.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	queued := false
	if startProcessing {
		if book.UploadStatus == store.StatusProcessing {
			writeError(w, http.StatusConflict, "book is already being processed")
			return
		}
		queued = submitProcessing(r, id)
	}

	writeJSON(w, http.StatusOK, UpdateBookResponse{Book: book, Queued: queued})
}

func (e *UpdateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		examName string
		examYear int
		subject  string
		start    bool
	)
	cmd := &cobra.Command{
		Use:   "books-update <book-id>",
		Short: "Update a book's exam metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if examName != "" {
				body["examName"] = examName
			}
			if examYear > 0 {
				body["examYear"] = examYear
			}
			if subject != "" {
				body["subject"] = subject
			}
			if start {
				body["startProcessing"] = true
			}

			client := api.NewClient(getServerURL())
			var resp UpdateBookResponse
			if err := client.Patch(cmd.Context(), "/api/books/"+args[0], body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&examName, "exam-name", "", "Exam name")
	cmd.Flags().IntVar(&examYear, "exam-year", 0, "Exam year")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject")
	cmd.Flags().BoolVar(&start, "start", false, "Queue extraction after the update")
	return cmd
}
