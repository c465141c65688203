package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pyqvault/pyqvault/internal/store"
)

// Snapshot is one observation of a book's extraction state.
type Snapshot struct {
	BookID         string         `json:"bookId"`
	Status         string         `json:"status"`
	Progress       float64        `json:"progress"`
	CurrentStep    string         `json:"currentStep"`
	TotalQuestions int            `json:"totalQuestions"`
	PageCount      int            `json:"pageCount"`
	PageStatuses   map[string]int `json:"pageStatuses"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Terminal reports whether extraction has finished, one way or the other.
func (s *Snapshot) Terminal() bool {
	return s.Status == store.StatusCompleted || s.Status == store.StatusFailed
}

// Reporter produces progress snapshots and polls them for streaming.
type Reporter struct {
	store Store
	log   *slog.Logger
}

// NewReporter creates a progress reporter.
func NewReporter(st Store, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{store: st, log: log.With("component", "progress")}
}

// Snapshot reads the current extraction state of a book.
func (r *Reporter) Snapshot(ctx context.Context, bookID string) (*Snapshot, error) {
	book, err := r.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	counts, err := r.store.CountPagesByStatus(ctx, bookID)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		BookID:         book.ID,
		Status:         book.UploadStatus,
		Progress:       book.ExtractionProgress,
		CurrentStep:    book.CurrentStep,
		TotalQuestions: book.TotalQuestionsExtracted,
		PageCount:      book.PageCount,
		PageStatuses:   counts,
		ErrorMessage:   book.ErrorMessage,
		UpdatedAt:      book.UpdatedAt,
	}, nil
}

// WatchEvent is one emission from Watch: a snapshot, or the error that
// ended the stream early (the book disappearing mid-watch).
type WatchEvent struct {
	Snapshot *Snapshot
	Err      error
}

// Watch emits a snapshot every interval until the book reaches a
// terminal status or the context is cancelled. The final snapshot is
// emitted before the channel closes. A book deleted mid-watch emits a
// final event carrying the error, then the channel closes.
func (r *Reporter) Watch(ctx context.Context, bookID string, interval time.Duration) <-chan WatchEvent {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	out := make(chan WatchEvent, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			snap, err := r.Snapshot(ctx, bookID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, store.ErrNotFound) {
					r.log.Warn("progress snapshot failed", "book_id", bookID, "error", err)
				}
				select {
				case out <- WatchEvent{Err: err}:
				case <-ctx.Done():
				}
				return
			}

			select {
			case out <- WatchEvent{Snapshot: snap}:
			case <-ctx.Done():
				return
			}

			if snap.Terminal() {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
