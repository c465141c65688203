package extract

import "encoding/json"

// Metadata is the exam identity inferred for an uploaded PDF.
type Metadata struct {
	ExamName    string  `json:"exam_name"`
	ExamYear    int     `json:"exam_year"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Subject     string  `json:"subject"`
	ExamType    string  `json:"exam_type"`
	PYQType     string  `json:"pyq_type"`
	Confidence  float64 `json:"confidence"`
}

// metadataSchema constrains the metadata detection model call.
var metadataSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"exam_name": {"type": "string"},
		"exam_year": {"type": "integer"},
		"title": {"type": "string"},
		"description": {"type": "string"},
		"subject": {"type": "string"},
		"exam_type": {"type": "string", "enum": ["full_length", "subject_wise"]},
		"pyq_type": {"type": "string"},
		"confidence": {"type": "number"}
	},
	"required": ["exam_name", "exam_year", "exam_type"]
}`)

// PageExtraction is the parsed model output for one page.
type PageExtraction struct {
	Questions []ExtractedQuestion `json:"questions"`
}

// ExtractedQuestion is one question as the model reports it.
type ExtractedQuestion struct {
	QuestionNumber int             `json:"question_number"`
	QuestionText   string          `json:"question_text"`
	Options        []string        `json:"options"`
	CorrectAnswer  string          `json:"correct_answer"`
	Explanation    string          `json:"explanation"`
	Subject        string          `json:"subject"`
	Topic          string          `json:"topic"`
	Difficulty     string          `json:"difficulty"`
	DiagramData    json.RawMessage `json:"diagram_data"`
}

// pageSchema constrains the per-page extraction model call.
var pageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"question_number": {"type": "integer"},
					"question_text": {"type": "string"},
					"options": {"type": "array", "items": {"type": "string"}},
					"correct_answer": {"type": "string"},
					"explanation": {"type": "string"},
					"subject": {"type": "string"},
					"topic": {"type": "string"},
					"difficulty": {"type": "string", "enum": ["easy", "medium", "hard", ""]},
					"diagram_data": {"type": "object"}
				},
				"required": ["question_number", "question_text"]
			}
		}
	},
	"required": ["questions"]
}`)
