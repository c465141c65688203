package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertQuestion inserts or replaces a question keyed by
// (book, question number). Re-extracting a page overwrites its
// questions instead of duplicating them.
func (s *Store) UpsertQuestion(ctx context.Context, q *Question) error {
	query := `
		INSERT INTO questions
			(book_id, question_number, subject, topic, exam_year, exam_type,
			 question_text, options, correct_answer, explanation,
			 marks_positive, marks_negative, difficulty, is_active,
			 diagram_data, page_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (book_id, question_number) DO UPDATE SET
			subject = EXCLUDED.subject,
			topic = EXCLUDED.topic,
			exam_year = EXCLUDED.exam_year,
			exam_type = EXCLUDED.exam_type,
			question_text = EXCLUDED.question_text,
			options = EXCLUDED.options,
			correct_answer = EXCLUDED.correct_answer,
			explanation = EXCLUDED.explanation,
			marks_positive = EXCLUDED.marks_positive,
			marks_negative = EXCLUDED.marks_negative,
			difficulty = EXCLUDED.difficulty,
			is_active = EXCLUDED.is_active,
			diagram_data = EXCLUDED.diagram_data,
			page_number = EXCLUDED.page_number,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	var diagram sql.NullString
	if len(q.DiagramData) > 0 {
		diagram = sql.NullString{String: string(q.DiagramData), Valid: true}
	}
	err := s.db.QueryRowContext(ctx, query, q.BookID, q.QuestionNumber, q.Subject,
		q.Topic, q.ExamYear, q.ExamType, q.QuestionText, encodeStrings(q.Options),
		q.CorrectAnswer, q.Explanation, q.MarksPositive, q.MarksNegative,
		q.Difficulty, q.IsActive, diagram, q.PageNumber).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert question %d for book %s: %w", q.QuestionNumber, q.BookID, err)
	}
	return nil
}

// ListQuestions returns a book's questions ordered by question number.
func (s *Store) ListQuestions(ctx context.Context, bookID string) ([]Question, error) {
	query := `SELECT id, book_id, question_number, subject, topic, exam_year,
			exam_type, question_text, options, correct_answer, explanation,
			marks_positive, marks_negative, difficulty, is_active, diagram_data,
			page_number, created_at, updated_at
		FROM questions WHERE book_id = $1 ORDER BY question_number`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions for book %s: %w", bookID, err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var q Question
		var options string
		var diagram sql.NullString
		if err := rows.Scan(&q.ID, &q.BookID, &q.QuestionNumber, &q.Subject,
			&q.Topic, &q.ExamYear, &q.ExamType, &q.QuestionText, &options,
			&q.CorrectAnswer, &q.Explanation, &q.MarksPositive, &q.MarksNegative,
			&q.Difficulty, &q.IsActive, &diagram, &q.PageNumber,
			&q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Options = decodeStrings(options)
		if diagram.Valid {
			q.DiagramData = json.RawMessage(diagram.String)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountQuestions returns how many questions a book has.
func (s *Store) CountQuestions(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions WHERE book_id = $1`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions for book %s: %w", bookID, err)
	}
	return n, nil
}

// QuestionNumbersBySubject returns the sorted extracted question numbers
// for a book grouped by subject. Aggregation reads this instead of the
// per-page rows so duplicate claims across pages collapse naturally.
func (s *Store) QuestionNumbersBySubject(ctx context.Context, bookID string) (map[string][]int, error) {
	query := `SELECT subject, question_number FROM questions
		WHERE book_id = $1 ORDER BY subject, question_number`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to query question numbers for book %s: %w", bookID, err)
	}
	defer rows.Close()

	bySubject := map[string][]int{}
	for rows.Next() {
		var subject string
		var num int
		if err := rows.Scan(&subject, &num); err != nil {
			return nil, fmt.Errorf("failed to scan question number: %w", err)
		}
		bySubject[subject] = append(bySubject[subject], num)
	}
	return bySubject, rows.Err()
}
