package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// ReportResponse is the full extraction report for a book.
type ReportResponse struct {
	Book         *store.Book           `json:"book"`
	Pages        []store.PageResult    `json:"pages"`
	Sections     []store.SectionResult `json:"sections"`
	Costs        []store.ProviderCost  `json:"costs"`
	TotalCostUSD string                `json:"totalCostUsd"`
}

// ReportEndpoint handles GET /api/books/{id}/extraction-report.
type ReportEndpoint struct{}

var _ api.Endpoint = (*ReportEndpoint)(nil)

func (e *ReportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/extraction-report", e.handler
}

func (e *ReportEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Extraction report
//	@Description	Full per-page and per-section extraction report with cost rollup
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	ReportResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/extraction-report [get]
func (e *ReportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	book, err := st.GetBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	pages, err := st.ListPages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sections, err := st.ListSections(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	costs, err := st.CostSummaryByProvider(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := st.TotalCost(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ReportResponse{
		Book:         book,
		Pages:        pages,
		Sections:     sections,
		Costs:        costs,
		TotalCostUSD: total,
	})
}

func (e *ReportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "report <book-id>",
		Short: "Show the full extraction report for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ReportResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/extraction-report", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
