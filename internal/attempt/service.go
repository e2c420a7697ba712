package attempt

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/event"
	"github.com/victornm/proctorquiz/internal/telemetry"
)

type Config struct {
	DB       *pgxpool.Pool
	EventBus *event.Bus
}

// Service settles finished attempts. It is the sole holder of correct
// answers at scoring time and the sole writer of score and coin state on the
// submission path.
type Service struct {
	db *pgxpool.Pool
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
		eb: c.EventBus,
	}
}

type SubmitRequest struct {
	QuizID string
	UserID string
	// Answers maps question ID to the chosen option, exactly as selected
	// by the user. Correctness claims from the client are never trusted;
	// scoring happens against the stored answers only.
	Answers map[string]string
	// Elapsed is the time taken in seconds.
	Elapsed int
}

type SubmitResponse struct {
	AttemptID   string
	QuizTitle   string
	TopicName   string
	Score       int
	TotalScore  int
	CoinsEarned int
}

// Submit re-scores the attempt against the stored correct answers and, in
// one transaction, persists the attempt record and applies the score and
// coin increments to the user. A failure rolls the whole thing back: there
// is never an attempt without its wallet credit or the reverse.
//
// There is no idempotency key: a duplicated call creates a second attempt
// and credits the wallet again. See DESIGN.md.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	answersJSON, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const quizStmt = `
SELECT q.title, t.name
FROM quizzes q
JOIN topics t ON t.topic_id = q.topic_id
WHERE q.quiz_id = $1;`

	resp := &SubmitResponse{AttemptID: id.String()}
	err = tx.QueryRow(ctx, quizStmt, req.QuizID).Scan(&resp.QuizTitle, &resp.TopicName)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", req.QuizID))
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}

	correct, err := s.loadCorrectAnswers(ctx, tx, req.QuizID)
	if err != nil {
		return nil, err
	}

	resp.Score = scoreAnswers(correct, req.Answers)
	resp.CoinsEarned = rewardDelta(resp.Score, len(correct))

	const insertStmt = `
INSERT INTO quiz_attempts (attempt_id, quiz_id, user_id, score, time_taken, user_answers, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = tx.Exec(ctx, insertStmt,
		id, req.QuizID, req.UserID, resp.Score, req.Elapsed, answersJSON, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	const walletStmt = `
UPDATE users
SET total_score = total_score + $2, coins = coins + $3
WHERE user_id = $1
RETURNING total_score;`

	err = tx.QueryRow(ctx, walletStmt, req.UserID, resp.Score, resp.CoinsEarned).Scan(&resp.TotalScore)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", req.UserID))
	}
	if err != nil {
		return nil, fmt.Errorf("update wallet: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	telemetry.AttemptsSettled.Inc()

	s.eb.Publish(ctx, domain.EventAttemptCompleted{
		Attempt: domain.Attempt{
			AttemptID:   id.String(),
			QuizID:      req.QuizID,
			UserID:      req.UserID,
			Score:       resp.Score,
			TimeTaken:   req.Elapsed,
			UserAnswers: req.Answers,
		},
		QuizTitle:   resp.QuizTitle,
		CoinsEarned: resp.CoinsEarned,
		TotalScore:  resp.TotalScore,
	})

	return resp, nil
}

func (s *Service) loadCorrectAnswers(ctx context.Context, tx pgx.Tx, quizID string) (map[string]string, error) {
	const stmt = `SELECT question_id, correct_answer FROM questions WHERE quiz_id = $1;`

	rows, err := tx.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("load correct answers: %w", err)
	}
	defer rows.Close()

	correct := make(map[string]string)
	for rows.Next() {
		var questionID, answer string
		if err := rows.Scan(&questionID, &answer); err != nil {
			return nil, fmt.Errorf("scan correct answer: %w", err)
		}
		correct[questionID] = answer
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read correct answers: %w", err)
	}

	return correct, nil
}

type GetAttemptRequest struct {
	AttemptID string
	UserID    string
}

// GetAttempt loads a persisted attempt for the result view. Only the owner
// may read it.
func (s *Service) GetAttempt(ctx context.Context, req GetAttemptRequest) (*domain.Attempt, error) {
	const stmt = `
SELECT attempt_id, quiz_id, user_id, score, time_taken, user_answers, create_time
FROM quiz_attempts
WHERE attempt_id = $1;`

	var (
		a       domain.Attempt
		answers []byte
	)
	err := s.db.QueryRow(ctx, stmt, req.AttemptID).
		Scan(&a.AttemptID, &a.QuizID, &a.UserID, &a.Score, &a.TimeTaken, &answers, &a.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("attempt not found: %s", req.AttemptID))
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	if a.UserID != req.UserID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("attempt %s does not belong to the caller", req.AttemptID))
	}

	if err := json.Unmarshal(answers, &a.UserAnswers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}

	return &a, nil
}
