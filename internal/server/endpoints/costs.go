package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// BookCostsResponse is the per-book cost breakdown.
type BookCostsResponse struct {
	BookID       string               `json:"bookId"`
	Entries      []store.CostEntry    `json:"entries"`
	ByProvider   []store.ProviderCost `json:"byProvider"`
	TotalCostUSD string               `json:"totalCostUsd"`
}

// BookCostsEndpoint handles GET /api/books/{id}/costs.
type BookCostsEndpoint struct{}

var _ api.Endpoint = (*BookCostsEndpoint)(nil)

func (e *BookCostsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/costs", e.handler
}

func (e *BookCostsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Book API costs
//	@Description	Full cost ledger for a book with a per-provider rollup
//	@Tags			costs
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	BookCostsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/costs [get]
func (e *BookCostsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	id := r.PathValue("id")
	entries, err := st.ListCosts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byProvider, err := st.CostSummaryByProvider(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := st.TotalCost(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, BookCostsResponse{
		BookID:       id,
		Entries:      entries,
		ByProvider:   byProvider,
		TotalCostUSD: total,
	})
}

func (e *BookCostsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "costs <book-id>",
		Short: "Show the API cost ledger for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BookCostsResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/costs", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
