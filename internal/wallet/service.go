package wallet

import (
	"context"
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

// Service guards the retake path: a retake costs coins, and the debit must
// be validated and applied before a new session may start.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type RetakeRequest struct {
	UserID string
	QuizID string
	Cost   int
}

// Retake checks the balance and debits the retake cost in one transaction.
// An insufficient balance rejects without mutation. Two concurrent retakes
// by the same user can both pass the balance check before either debit
// lands; see DESIGN.md.
func (s *Service) Retake(ctx context.Context, req RetakeRequest) (err error) {
	if req.Cost <= 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid retake cost: %d", req.Cost))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	var coins int
	err = tx.QueryRow(ctx, `SELECT coins FROM users WHERE user_id = $1;`, req.UserID).Scan(&coins)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", req.UserID))
	}
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}

	if coins < req.Cost {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("not enough coins: have %d, need %d", coins, req.Cost))
	}

	_, err = tx.Exec(ctx, `UPDATE users SET coins = coins - $2 WHERE user_id = $1;`, req.UserID, req.Cost)
	if err != nil {
		return fmt.Errorf("debit coins: %w", err)
	}

	return tx.Commit(ctx)
}

// Balance returns the user's wallet view.
func (s *Service) Balance(ctx context.Context, userID string) (*domain.Wallet, error) {
	w := &domain.Wallet{UserID: userID}

	err := s.db.QueryRow(ctx, `SELECT coins, total_score FROM users WHERE user_id = $1;`, userID).
		Scan(&w.Coins, &w.TotalScore)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	return w, nil
}
