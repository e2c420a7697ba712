package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultLimit    = 50
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service maintains the global leaderboard: users ranked by cumulative
// total score. Scores arrive through attempt.completed events published by
// the submission service.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameAttemptCompleted, func(ctx context.Context, e event.Event) error {
		return s.RecordScore(ctx, e.(domain.EventAttemptCompleted))
	})

	return s
}

type GetLeaderboardRequest struct {
	Limit int
}

// GetLeaderboard returns the top users by cumulative score, descending.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("leaderboard is empty"))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  z.Score,
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

// RecordScore overwrites the user's leaderboard entry with their cumulative
// score after settlement.
func (s *Service) RecordScore(ctx context.Context, e domain.EventAttemptCompleted) error {
	if err := s.redis.ZAdd(ctx, s.leaderboardKey(), redis.Z{
		Score:  float64(e.TotalScore),
		Member: e.Attempt.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublish(ctx)
}

// schedulePublish publishes leaderboard changes at most once per interval.
// Settlements can cluster (a whole class finishing a timed quiz together),
// so a SetNX gate collapses the burst into one published snapshot.
func (s *Service) schedulePublish(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publish(ctx)
}

func (s *Service) publish(ctx context.Context) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) leaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) timeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
