package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

func TestMetadataFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		expected Metadata
	}{
		{
			name:     "neet full paper",
			fileName: "NEET_2023_Question_Paper.pdf",
			expected: Metadata{
				ExamName: "NEET", ExamYear: 2023,
				ExamType: store.ExamTypeFullLength, PYQType: "official",
				Title:       "NEET 2023 Question Paper",
				Description: "Previous year question paper imported from NEET_2023_Question_Paper.pdf",
			},
		},
		{
			name:     "subject wise",
			fileName: "neet-physics-2022.pdf",
			expected: Metadata{
				ExamName: "NEET", ExamYear: 2022, Subject: "Physics",
				ExamType: store.ExamTypeSubjectWise, PYQType: "official",
				Title:       "neet physics 2022",
				Description: "Previous year question paper imported from neet-physics-2022.pdf",
			},
		},
		{
			name:     "jee paper",
			fileName: "jee_main_2024_maths.pdf",
			expected: Metadata{
				ExamName: "JEE Main", ExamYear: 2024, Subject: "Mathematics",
				ExamType: store.ExamTypeSubjectWise, PYQType: "official",
				Title:       "jee main 2024 maths",
				Description: "Previous year question paper imported from jee_main_2024_maths.pdf",
			},
		},
		{
			name:     "nothing recognizable",
			fileName: "scan0001.pdf",
			expected: Metadata{
				ExamName: "Unknown",
				ExamType: store.ExamTypeFullLength, PYQType: "official",
				Title:       "scan0001",
				Description: "Previous year question paper imported from scan0001.pdf",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetadataFromFilename(tt.fileName)
			if got != tt.expected {
				t.Errorf("MetadataFromFilename(%q) = %+v, want %+v", tt.fileName, got, tt.expected)
			}
		})
	}
}

func TestInferUsesModelOutput(t *testing.T) {
	mock := providers.NewMock("mockai")
	parsed, _ := json.Marshal(map[string]any{
		"exam_name": "NEET", "exam_year": 2023, "subject": "",
		"exam_type": "full_length", "pyq_type": "official", "confidence": 0.95,
	})
	mock.Enqueue(&providers.VisionResult{
		Content:      string(parsed),
		ParsedJSON:   parsed,
		Provider:     "mockai",
		ModelUsed:    "mock-model",
		InputTokens:  100,
		OutputTokens: 50,
		CostUSD:      0.001,
		Success:      true,
	}, nil)

	ledger := &memLedger{}
	inf := NewInferencer(mock, ledger, nil)

	meta := inf.Infer(context.Background(), "whatever.pdf", []byte("png"))
	if meta.ExamName != "NEET" || meta.ExamYear != 2023 {
		t.Errorf("metadata = %+v, want NEET 2023", meta)
	}
	if meta.ExamType != store.ExamTypeFullLength {
		t.Errorf("exam type = %q", meta.ExamType)
	}

	// The detection call must be in the ledger.
	entries := ledger.byOperation(store.OpMetadataDetection)
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	if !entries[0].Success {
		t.Error("ledger entry should record success")
	}
}

func TestInferFallsBackOnModelFailure(t *testing.T) {
	mock := providers.NewMock("mockai")
	mock.Enqueue(&providers.VisionResult{
		Provider:     "mockai",
		ModelUsed:    "mock-model",
		Success:      false,
		ErrorType:    providers.ErrTypeTransient,
		ErrorMessage: "rate limited",
	}, &providers.APIError{Provider: "mockai", StatusCode: 429})

	ledger := &memLedger{}
	inf := NewInferencer(mock, ledger, nil)

	meta := inf.Infer(context.Background(), "neet_2021_biology.pdf", []byte("png"))
	if meta.ExamName != "NEET" || meta.ExamYear != 2021 || meta.Subject != "Biology" {
		t.Errorf("fallback metadata = %+v", meta)
	}

	// Failed detection still lands in the ledger.
	entries := ledger.byOperation(store.OpMetadataDetection)
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry for failed call, got %d", len(entries))
	}
	if entries[0].Success {
		t.Error("ledger entry should record failure")
	}
}

func TestInferWithoutImageUsesFilename(t *testing.T) {
	mock := providers.NewMock("mockai")
	inf := NewInferencer(mock, &memLedger{}, nil)

	meta := inf.Infer(context.Background(), "neet_2020.pdf", nil)
	if meta.ExamName != "NEET" || meta.ExamYear != 2020 {
		t.Errorf("metadata = %+v, want NEET 2020", meta)
	}
	if mock.CallCount() != 0 {
		t.Errorf("expected no model calls without an image, got %d", mock.CallCount())
	}
}

func TestInferFallsBackOnUnparseableOutput(t *testing.T) {
	mock := providers.NewMock("mockai")
	mock.Respond = func(req *providers.VisionRequest) (*providers.VisionResult, error) {
		return nil, errors.New("boom")
	}

	inf := NewInferencer(mock, &memLedger{}, nil)
	meta := inf.Infer(context.Background(), "jee_2019.pdf", []byte("png"))
	if meta.ExamName != "JEE Main" || meta.ExamYear != 2019 {
		t.Errorf("fallback metadata = %+v", meta)
	}
}
