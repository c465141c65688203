package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/extract"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// ProgressEndpoint handles GET /api/books/{id}/progress.
type ProgressEndpoint struct{}

var _ api.Endpoint = (*ProgressEndpoint)(nil)

func (e *ProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/progress", e.handler
}

func (e *ProgressEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get extraction progress
//	@Description	Get a snapshot of a book's extraction progress
//	@Tags			progress
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	extract.Snapshot
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/progress [get]
func (e *ProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reporter := svcctx.ReporterFrom(r.Context())
	if reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "reporter not initialized")
		return
	}

	snap, err := reporter.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (e *ProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "progress <book-id>",
		Short: "Show extraction progress for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/books/" + args[0] + "/progress"

			if !watch {
				var snap extract.Snapshot
				if err := client.Get(cmd.Context(), path, &snap); err != nil {
					return err
				}
				return api.Output(snap)
			}

			// Poll until the book reaches a terminal status.
			for {
				var snap extract.Snapshot
				if err := client.Get(cmd.Context(), path, &snap); err != nil {
					return err
				}
				fmt.Printf("%s %5.1f%% %s (%d questions)\n",
					snap.Status, snap.Progress, snap.CurrentStep, snap.TotalQuestions)
				if snap.Status == "completed" || snap.Status == "failed" {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(2 * time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until extraction finishes")
	return cmd
}
