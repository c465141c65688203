package extract

import (
	"fmt"
	"strings"
)

// metadataSystemPrompt primes the model for exam identification.
const metadataSystemPrompt = `You are an expert at identifying Indian competitive exam papers (NEET, JEE Main, JEE Advanced, state CETs and similar) from their first page. You always answer with the requested JSON and nothing else.`

// buildMetadataPrompt asks the model to identify the exam from the
// first page image, with the filename as a secondary hint.
func buildMetadataPrompt(fileName string) string {
	return fmt.Sprintf(`Identify this exam paper from its first page.

The file was uploaded as %q, which may hint at the exam and year.

Report:
- exam_name: the exam (e.g. "NEET", "JEE Main")
- exam_year: the four digit year the paper was held
- subject: the single subject if this is a subject-wise paper, otherwise ""
- exam_type: "full_length" for a complete paper covering all subjects, "subject_wise" for a single subject paper
- pyq_type: "official" for an actual past paper, "sample" for a sample/model paper
- confidence: 0 to 1, how sure you are overall`, fileName)
}

// pageSystemPrompt primes the model for question extraction.
const pageSystemPrompt = `You are an expert at transcribing questions from scanned exam paper pages. You transcribe exactly what is printed, keep the original question numbering, and always answer with the requested JSON and nothing else.`

// buildPagePrompt asks the model to extract every question on a page.
// The expected number range, when known, is given so the model can flag
// its own coverage.
func buildPagePrompt(subject string, expectedFirst, expectedLast int) string {
	var b strings.Builder
	b.WriteString("Extract every exam question visible on this page.\n\n")

	if subject != "" {
		fmt.Fprintf(&b, "This page belongs to the %s section.\n", subject)
	}
	if expectedFirst > 0 && expectedLast >= expectedFirst {
		fmt.Fprintf(&b, "Question numbers %d through %d are expected in this part of the paper; a page may contain only some of them.\n", expectedFirst, expectedLast)
	}

	b.WriteString(`
For each question report:
- question_number: the printed number
- question_text: the full question text
- options: the answer options in printed order, including their labels
- correct_answer: the marked answer if an answer key is printed, otherwise ""
- explanation: the printed solution or explanation if present, otherwise ""
- subject: the subject this question belongs to if identifiable, otherwise ""

Skip instructions, headers and advertisements. If the page contains no questions, return an empty questions array.`)
	return b.String()
}
