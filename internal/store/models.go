package store

import (
	"encoding/json"
	"time"
)

// Book upload statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Page extraction statuses.
const (
	PageStatusPending = "pending"
	PageStatusSuccess = "success"
	PageStatusPartial = "partial"
	PageStatusFailed  = "failed"
)

// Section statuses.
const (
	SectionStatusComplete = "complete"
	SectionStatusPartial  = "partial"
	SectionStatusFailed   = "failed"
)

// Exam types.
const (
	ExamTypeFullLength  = "full_length"
	ExamTypeSubjectWise = "subject_wise"
)

// Cost ledger operations.
const (
	OpMetadataDetection = "metadata_detection"
	OpPageExtraction    = "page_extraction"
)

// Book is one uploaded exam paper PDF and its extraction state.
type Book struct {
	ID                      string    `json:"id"`
	ContentHash             string    `json:"contentHash"`
	Title                   string    `json:"title"`
	Description             string    `json:"description"`
	FileName                string    `json:"fileName"`
	FileSize                int64     `json:"fileSize"`
	ExamName                string    `json:"examName"`
	ExamYear                int       `json:"examYear"`
	Subject                 string    `json:"subject"`
	ExamType                string    `json:"examType"`
	PYQType                 string    `json:"pyqType"`
	UploadStatus            string    `json:"uploadStatus"`
	ExtractionProgress      float64   `json:"extractionProgress"`
	CurrentStep             string    `json:"currentStep"`
	TotalQuestionsExtracted int       `json:"totalQuestionsExtracted"`
	ExpectedQuestions       int       `json:"expectedQuestions"`
	PageCount               int       `json:"pageCount"`
	ErrorMessage            string    `json:"errorMessage,omitempty"`

	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	ProcessingEndedAt   *time.Time `json:"processingEndedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PageResult is the extraction outcome for a single page of a book.
// ExtractedNumbers and MissingNumbers are never nil.
type PageResult struct {
	ID               int64      `json:"id"`
	BookID           string     `json:"bookId"`
	PageNumber       int        `json:"pageNumber"`
	Status           string     `json:"status"`
	Subject          string     `json:"subject"`
	ExpectedFirst    int        `json:"expectedFirst"`
	ExpectedLast     int        `json:"expectedLast"`
	QuestionsFound   int        `json:"questionsFound"`
	ExtractedNumbers []int      `json:"extractedNumbers"`
	MissingNumbers   []int      `json:"missingNumbers"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model"`
	InputTokens      int64      `json:"inputTokens"`
	OutputTokens     int64      `json:"outputTokens"`
	APICostUSD       string     `json:"apiCostUsd"`
	ProcessingTimeMS int64      `json:"processingTimeMs"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	RetryCount       int        `json:"retryCount"`
	LastRetryAt      *time.Time `json:"lastRetryAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// SectionResult is the aggregated outcome for one section of a book.
type SectionResult struct {
	ID                int64     `json:"id"`
	BookID            string    `json:"bookId"`
	Subject           string    `json:"subject"`
	StartPage         int       `json:"startPage"`
	EndPage           int       `json:"endPage"`
	ExpectedQuestions int       `json:"expectedQuestions"`
	QuestionsFound    int       `json:"questionsFound"`
	MissingNumbers    []int     `json:"missingNumbers"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CostEntry is one append-only row in the API cost ledger. Every model
// call gets a row, successful or not.
type CostEntry struct {
	ID           int64     `json:"id"`
	BookID       string    `json:"bookId,omitempty"`
	Operation    string    `json:"operation"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	PageNumber   *int      `json:"pageNumber,omitempty"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	CostUSD      string    `json:"costUsd"`
	Success      bool      `json:"success"`
	ErrorType    string    `json:"errorType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Question is one extracted question, unique per (book, question number).
type Question struct {
	ID             int64           `json:"id"`
	BookID         string          `json:"bookId"`
	QuestionNumber int             `json:"questionNumber"`
	Subject        string          `json:"subject"`
	Topic          string          `json:"topic,omitempty"`
	ExamYear       int             `json:"examYear,omitempty"`
	ExamType       string          `json:"examType,omitempty"`
	QuestionText   string          `json:"questionText"`
	Options        []string        `json:"options"`
	CorrectAnswer  string          `json:"correctAnswer"`
	Explanation    string          `json:"explanation,omitempty"`
	MarksPositive  float64         `json:"marksPositive"`
	MarksNegative  float64         `json:"marksNegative"`
	Difficulty     string          `json:"difficulty,omitempty"`
	IsActive       bool            `json:"isActive"`
	DiagramData    json.RawMessage `json:"diagramData,omitempty"`
	PageNumber     int             `json:"pageNumber"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}
