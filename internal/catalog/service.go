package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service reads quiz content. It is the only reader of correct answers
// outside the submission transaction; callers that talk to clients must use
// the stripped question projection.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

// LoadQuiz returns a quiz with its questions in authored order, correct
// answers included.
func (s *Service) LoadQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	const quizStmt = `
SELECT q.quiz_id, q.title, q.time_limit, t.topic_id, t.name
FROM quizzes q
JOIN topics t ON t.topic_id = q.topic_id
WHERE q.quiz_id = $1;`

	var quiz domain.Quiz
	err := s.db.QueryRow(ctx, quizStmt, quizID).
		Scan(&quiz.QuizID, &quiz.Title, &quiz.TimeLimit, &quiz.TopicID, &quiz.TopicName)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	const questionStmt = `
SELECT question_id, text, options, correct_answer
FROM questions
WHERE quiz_id = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, questionStmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	quiz.Questions, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var (
			q       domain.Question
			options []byte
		)
		if err := r.Scan(&q.QuestionID, &q.Text, &options, &q.CorrectAnswer); err != nil {
			return domain.Question{}, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return domain.Question{}, fmt.Errorf("decode options: %w", err)
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	return &quiz, nil
}
