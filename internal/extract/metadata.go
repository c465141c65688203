package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pyqvault/pyqvault/internal/providers"
	"github.com/pyqvault/pyqvault/internal/store"
)

// Inferencer detects exam metadata from a PDF's first page. It never
// fails: when the model call goes wrong it falls back to parsing the
// filename, so an upload can always proceed.
type Inferencer struct {
	vision providers.VisionClient
	ledger Ledger
	log    *slog.Logger
}

// NewInferencer creates a metadata inferencer.
func NewInferencer(vision providers.VisionClient, ledger Ledger, log *slog.Logger) *Inferencer {
	if log == nil {
		log = slog.Default()
	}
	return &Inferencer{vision: vision, ledger: ledger, log: log.With("component", "metadata")}
}

// Infer detects exam metadata from the first page image. The model call
// is recorded in the cost ledger whether it succeeds or not; firstPage
// may be nil when rendering failed, in which case only the filename is
// used.
func (inf *Inferencer) Infer(ctx context.Context, fileName string, firstPage []byte) Metadata {
	if inf.vision == nil || len(firstPage) == 0 {
		return MetadataFromFilename(fileName)
	}

	req := &providers.VisionRequest{
		System:      metadataSystemPrompt,
		Prompt:      buildMetadataPrompt(fileName),
		Images:      [][]byte{firstPage},
		MaxTokens:   1024,
		Temperature: 0,
		Schema:      metadataSchema,
	}

	res, err := inf.vision.Vision(ctx, req)
	if inf.ledger != nil && res != nil {
		inf.ledger.RecordVision(ctx, "", store.OpMetadataDetection, nil, res)
	}
	if err != nil || res == nil || len(res.ParsedJSON) == 0 {
		inf.log.Warn("metadata detection failed, falling back to filename",
			"file", fileName, "error", err)
		return MetadataFromFilename(fileName)
	}

	var meta Metadata
	if err := json.Unmarshal(res.ParsedJSON, &meta); err != nil {
		inf.log.Warn("metadata response unparseable, falling back to filename",
			"file", fileName, "error", err)
		return MetadataFromFilename(fileName)
	}

	normalizeMetadata(&meta)
	if meta.ExamName == "" {
		fallback := MetadataFromFilename(fileName)
		meta.ExamName = fallback.ExamName
		if meta.ExamYear == 0 {
			meta.ExamYear = fallback.ExamYear
		}
	}
	if meta.Title == "" {
		meta.Title = titleFromFilename(fileName)
	}
	if meta.Description == "" {
		meta.Description = genericDescription(fileName)
	}
	return meta
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// knownSubjects maps filename tokens to canonical subject names.
var knownSubjects = map[string]string{
	"physics":     "Physics",
	"chemistry":   "Chemistry",
	"biology":     "Biology",
	"botany":      "Botany",
	"zoology":     "Zoology",
	"mathematics": "Mathematics",
	"maths":       "Mathematics",
	"math":        "Mathematics",
}

// knownExams maps filename tokens to canonical exam names.
var knownExams = map[string]string{
	"neet":     "NEET",
	"jee":      "JEE Main",
	"aiims":    "AIIMS",
	"bitsat":   "BITSAT",
	"cet":      "CET",
	"advanced": "JEE Advanced",
}

// MetadataFromFilename guesses exam metadata from the upload's
// filename. It is the fallback when model detection is unavailable.
func MetadataFromFilename(fileName string) Metadata {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	lower := strings.ToLower(base)

	meta := Metadata{
		ExamName:    "Unknown",
		ExamType:    store.ExamTypeFullLength,
		PYQType:     "official",
		Title:       titleFromFilename(fileName),
		Description: genericDescription(fileName),
	}

	if m := yearPattern.FindString(lower); m != "" {
		if year, err := strconv.Atoi(m); err == nil {
			meta.ExamYear = year
		}
	}

	tokens := regexp.MustCompile(`[^a-z0-9]+`).Split(lower, -1)
	for _, tok := range tokens {
		if exam, ok := knownExams[tok]; ok && meta.ExamName == "Unknown" {
			meta.ExamName = exam
		}
		if subject, ok := knownSubjects[tok]; ok && meta.Subject == "" {
			meta.Subject = subject
		}
	}

	if meta.Subject != "" {
		meta.ExamType = store.ExamTypeSubjectWise
	}
	return meta
}

var separatorPattern = regexp.MustCompile(`[_\-.]+`)

// titleFromFilename turns an upload filename into a readable title.
func titleFromFilename(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	title := strings.TrimSpace(separatorPattern.ReplaceAllString(base, " "))
	if title == "" {
		return "Untitled exam paper"
	}
	return title
}

func genericDescription(fileName string) string {
	return "Previous year question paper imported from " + filepath.Base(fileName)
}

// normalizeMetadata repairs model output fields into canonical form.
func normalizeMetadata(meta *Metadata) {
	meta.ExamName = strings.TrimSpace(meta.ExamName)
	meta.Subject = strings.TrimSpace(meta.Subject)
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Description = strings.TrimSpace(meta.Description)

	switch meta.ExamType {
	case store.ExamTypeFullLength, store.ExamTypeSubjectWise:
	default:
		if meta.Subject != "" {
			meta.ExamType = store.ExamTypeSubjectWise
		} else {
			meta.ExamType = store.ExamTypeFullLength
		}
	}

	if meta.PYQType == "" {
		meta.PYQType = "official"
	}
}
