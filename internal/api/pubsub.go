package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/proctorquiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		UserID string `json:"user_id"`
		Score  int    `json:"score"`
	}

	AttemptSettled struct {
		AttemptID   string `json:"attempt_id"`
		QuizTitle   string `json:"quiz_title"`
		Score       int    `json:"score"`
		CoinsEarned int    `json:"coins_earned"`
		TotalScore  int    `json:"total_score"`
	}
)

// PublishAttemptCompleted notifies the owning user that their attempt has
// been scored and their wallet credited.
func (a *API) PublishAttemptCompleted(ctx context.Context, e domain.EventAttemptCompleted) error {
	return a.publishNotification(ctx, e.Attempt.UserID, e.Name(), AttemptSettled{
		AttemptID:   e.Attempt.AttemptID,
		QuizTitle:   e.QuizTitle,
		Score:       e.Attempt.Score,
		CoinsEarned: e.CoinsEarned,
		TotalScore:  e.TotalScore,
	})
}

// PublishLeaderboardUpdated fans the fresh leaderboard out to every ranked
// user's channel.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := Leaderboard{
		Entries: make([]LeaderboardEntry, 0, len(e.Leaderboard.Entries)),
	}

	for _, entry := range e.Leaderboard.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			UserID: entry.UserID,
			Score:  int(entry.Score),
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), b).Err()
}
