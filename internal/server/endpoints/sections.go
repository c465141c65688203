package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// ListSectionsResponse is the response for listing sections.
type ListSectionsResponse struct {
	Sections []store.SectionResult `json:"sections"`
}

// ListSectionsEndpoint handles GET /api/books/{id}/sections.
type ListSectionsEndpoint struct{}

var _ api.Endpoint = (*ListSectionsEndpoint)(nil)

func (e *ListSectionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/sections", e.handler
}

func (e *ListSectionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List sections
//	@Description	List aggregated per-section extraction results
//	@Tags			sections
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	ListSectionsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/sections [get]
func (e *ListSectionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	sections, err := st.ListSections(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListSectionsResponse{Sections: sections})
}

func (e *ListSectionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "sections <book-id>",
		Short: "List per-section extraction results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSectionsResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/sections", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
