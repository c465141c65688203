// Package costs records model spend in the append-only ledger. Ledger
// writes are bookkeeping: failures are logged and swallowed so they can
// never fail the extraction work they describe.
package costs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Recorder writes cost ledger rows.
type Recorder struct {
	store *store.Store
	log   *slog.Logger
}

// NewRecorder creates a cost recorder.
func NewRecorder(st *store.Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: st, log: log.With("component", "costs")}
}

// RecordVision appends a ledger row for one model call attempt,
// successful or not. bookID may be empty when no book row exists yet.
func (r *Recorder) RecordVision(ctx context.Context, bookID, operation string, pageNumber *int, res *providers.VisionResult) {
	if res == nil {
		return
	}

	entry := &store.CostEntry{
		BookID:       bookID,
		Operation:    operation,
		Provider:     res.Provider,
		Model:        res.ModelUsed,
		PageNumber:   pageNumber,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		CostUSD:      fmt.Sprintf("%.6f", res.CostUSD),
		Success:      res.Success,
		ErrorType:    res.ErrorType,
	}

	if err := r.store.InsertCost(ctx, entry); err != nil {
		r.log.Error("failed to record cost entry",
			"book_id", bookID,
			"operation", operation,
			"error", err)
	}
}
