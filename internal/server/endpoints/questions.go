package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// ListQuestionsResponse is the response for listing questions.
type ListQuestionsResponse struct {
	Questions []store.Question `json:"questions"`
	Total     int              `json:"total"`
}

// ListQuestionsEndpoint handles GET /api/books/{id}/questions.
type ListQuestionsEndpoint struct{}

var _ api.Endpoint = (*ListQuestionsEndpoint)(nil)

func (e *ListQuestionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/questions", e.handler
}

func (e *ListQuestionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List questions
//	@Description	List all extracted questions for a book in question-number order
//	@Tags			questions
//	@Produce		json
//	@Param			id		path		string	true	"Book ID"
//	@Param			subject	query		string	false	"Filter by subject"
//	@Success		200		{object}	ListQuestionsResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/questions [get]
func (e *ListQuestionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	questions, err := st.ListQuestions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if subject := r.URL.Query().Get("subject"); subject != "" {
		filtered := questions[:0]
		for _, q := range questions {
			if q.Subject == subject {
				filtered = append(filtered, q)
			}
		}
		questions = filtered
	}
	if questions == nil {
		questions = []store.Question{}
	}

	writeJSON(w, http.StatusOK, ListQuestionsResponse{Questions: questions, Total: len(questions)})
}

func (e *ListQuestionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "questions <book-id>",
		Short: "List extracted questions for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListQuestionsResponse
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/questions", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
