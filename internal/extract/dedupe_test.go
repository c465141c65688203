package extract

import (
	"context"
	"testing"

	"github.com/pyqvault/pyqvault/internal/store"
)

func TestDetectorFindsIdentityDuplicate(t *testing.T) {
	st := newMemStore()
	st.addBook(&store.Book{
		ID:          "existing",
		ContentHash: "hash-a",
		ExamName:    "NEET",
		ExamYear:    2023,
		ExamType:    store.ExamTypeFullLength,
		PYQType:     "official",
	})

	detector := NewDetector(st)

	// Different scan (different hash), same paper. Identity is exam name
	// plus year: a re-scan whose subject or paper type was inferred
	// differently is still the same exam.
	dup, err := detector.Check(context.Background(), "hash-b", Metadata{
		ExamName: "neet",
		ExamYear: 2023,
		Subject:  "Physics",
		ExamType: store.ExamTypeSubjectWise,
		PYQType:  "rescan",
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if dup == nil {
		t.Fatal("expected identity duplicate")
	}
	if dup.Reason != DuplicateByIdentity {
		t.Errorf("reason = %q, want %q", dup.Reason, DuplicateByIdentity)
	}
	if dup.Book.ID != "existing" {
		t.Errorf("matched book %q, want existing", dup.Book.ID)
	}
}

func TestDetectorFindsHashDuplicate(t *testing.T) {
	st := newMemStore()
	st.addBook(&store.Book{
		ID:          "existing",
		ContentHash: "hash-a",
		ExamName:    "NEET",
		ExamYear:    2023,
		ExamType:    store.ExamTypeFullLength,
		PYQType:     "official",
	})

	detector := NewDetector(st)

	// Same bytes re-uploaded but metadata detection came out different.
	dup, err := detector.Check(context.Background(), "hash-a", Metadata{
		ExamName: "Unknown",
		ExamYear: 2020,
		ExamType: store.ExamTypeFullLength,
		PYQType:  "official",
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if dup == nil {
		t.Fatal("expected hash duplicate")
	}
	if dup.Reason != DuplicateByHash {
		t.Errorf("reason = %q, want %q", dup.Reason, DuplicateByHash)
	}
}

func TestDetectorNoDuplicate(t *testing.T) {
	st := newMemStore()
	st.addBook(&store.Book{
		ID:          "existing",
		ContentHash: "hash-a",
		ExamName:    "NEET",
		ExamYear:    2023,
		ExamType:    store.ExamTypeFullLength,
		PYQType:     "official",
	})

	detector := NewDetector(st)

	dup, err := detector.Check(context.Background(), "hash-b", Metadata{
		ExamName: "NEET",
		ExamYear: 2024,
		ExamType: store.ExamTypeFullLength,
		PYQType:  "official",
	})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if dup != nil {
		t.Errorf("expected no duplicate, got %+v", dup)
	}
}

func TestHashPDFDeterministic(t *testing.T) {
	a := HashPDF([]byte("pdf bytes"))
	b := HashPDF([]byte("pdf bytes"))
	c := HashPDF([]byte("other bytes"))

	if a != b {
		t.Error("same bytes produced different hashes")
	}
	if a == c {
		t.Error("different bytes produced the same hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
