package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyqvault/pyqvault/internal/api"
	"github.com/pyqvault/pyqvault/internal/store"
	"github.com/pyqvault/pyqvault/internal/svcctx"
)

// streamInterval is how often the SSE stream polls for progress.
const streamInterval = 2 * time.Second

// ProgressStreamEndpoint handles GET /api/books/{id}/progress/stream
// as a Server-Sent Events stream. One "progress" event is sent per
// snapshot; the stream ends after the terminal snapshot.
type ProgressStreamEndpoint struct{}

var _ api.Endpoint = (*ProgressStreamEndpoint)(nil)

func (e *ProgressStreamEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/progress/stream", e.handler
}

func (e *ProgressStreamEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream extraction progress
//	@Description	Server-Sent Events stream of progress snapshots until extraction finishes
//	@Tags			progress
//	@Produce		text/event-stream
//	@Param			id	path	string	true	"Book ID"
//	@Success		200
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/progress/stream [get]
func (e *ProgressStreamEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reporter := svcctx.ReporterFrom(r.Context())
	if reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "reporter not initialized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range reporter.Watch(r.Context(), r.PathValue("id"), streamInterval) {
		if ev.Err != nil {
			// The book disappeared mid-stream; end with a terminal error.
			msg := ev.Err.Error()
			if errors.Is(ev.Err, store.ErrNotFound) {
				msg = "book not found"
			}
			fmt.Fprintf(w, "event: error\ndata: {\"error\": %q}\n\n", msg)
			flusher.Flush()
			return
		}
		data, err := json.Marshal(ev.Snapshot)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
		flusher.Flush()
	}

	// The watcher closes the channel after the terminal snapshot.
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

func (e *ProgressStreamEndpoint) Command(_ func() string) *cobra.Command {
	// The CLI polls via "progress --watch" instead of consuming SSE.
	return nil
}
