package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pyqvault/pyqvault/internal/store"
)

// Duplicate match reasons.
const (
	DuplicateByIdentity = "exam_identity"
	DuplicateByHash     = "content_hash"
)

// Duplicate describes an existing book that matches an upload.
type Duplicate struct {
	Book   *store.Book `json:"book"`
	Reason string      `json:"reason"`
}

// Detector finds existing books that match an upload, first by exam
// identity, then by exact content hash.
type Detector struct {
	store Store
}

// NewDetector creates a duplicate detector.
func NewDetector(st Store) *Detector {
	return &Detector{store: st}
}

// HashPDF computes the content hash used for exact-duplicate detection.
func HashPDF(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Check looks for an existing book matching the upload. The identity
// check runs first: two different scans of the same paper are still the
// same paper. The hash check catches re-uploads whose metadata came out
// different.
func (d *Detector) Check(ctx context.Context, contentHash string, meta Metadata) (*Duplicate, error) {
	if meta.ExamName != "" && meta.ExamYear > 0 {
		book, err := d.store.FindBookByIdentity(ctx, meta.ExamName, meta.ExamYear)
		if err != nil {
			return nil, fmt.Errorf("identity lookup failed: %w", err)
		}
		if book != nil {
			return &Duplicate{Book: book, Reason: DuplicateByIdentity}, nil
		}
	}

	book, err := d.store.FindBookByHash(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("hash lookup failed: %w", err)
	}
	if book != nil {
		return &Duplicate{Book: book, Reason: DuplicateByHash}, nil
	}

	return nil, nil
}
