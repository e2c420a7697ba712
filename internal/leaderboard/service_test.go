package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/event"
	"github.com/victornm/proctorquiz/internal/leaderboard"
)

func TestService_RecordScore(t *testing.T) {
	s := makeService(t)

	err := s.RecordScore(context.Background(), attemptCompleted("u1", 3))
	require.NoError(t, err)

	resp, err := s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{})
	require.NoError(t, err)

	want := &domain.Leaderboard{
		Entries: []domain.LeaderboardEntry{
			{UserID: "u1", Score: 3},
		},
	}
	require.Equal(t, want, resp)
}

func TestService_GetLeaderboard(t *testing.T) {
	type (
		inputs struct {
			recorded []domain.EventAttemptCompleted
			limit    int
		}

		outputs struct {
			leaderboard *domain.Leaderboard
			err         error
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"users are ranked by cumulative score, descending": {
			arrange: func() inputs {
				return inputs{
					recorded: []domain.EventAttemptCompleted{
						attemptCompleted("u1", 3),
						attemptCompleted("u2", 7),
						attemptCompleted("u3", 5),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Equal(t, &domain.Leaderboard{
					Entries: []domain.LeaderboardEntry{
						{UserID: "u2", Score: 7},
						{UserID: "u3", Score: 5},
						{UserID: "u1", Score: 3},
					},
				}, out.leaderboard)
			},
		},

		"a later settlement overwrites the user's entry": {
			arrange: func() inputs {
				return inputs{
					recorded: []domain.EventAttemptCompleted{
						attemptCompleted("u1", 3),
						attemptCompleted("u1", 8),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Equal(t, &domain.Leaderboard{
					Entries: []domain.LeaderboardEntry{
						{UserID: "u1", Score: 8},
					},
				}, out.leaderboard)
			},
		},

		"limit caps the number of entries": {
			arrange: func() inputs {
				return inputs{
					recorded: []domain.EventAttemptCompleted{
						attemptCompleted("u1", 3),
						attemptCompleted("u2", 7),
						attemptCompleted("u3", 5),
					},
					limit: 2,
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				require.Len(t, out.leaderboard.Entries, 2)
				require.Equal(t, "u2", out.leaderboard.Entries[0].UserID)
			},
		},

		"an empty leaderboard is not found": {
			arrange: func() inputs {
				return inputs{}
			},

			assert: func(t *testing.T, out outputs) {
				require.Error(t, out.err)
				require.Equal(t, errors.CodeNotFound, errors.Convert(out.err).Code)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			s := makeService(t)
			for _, e := range in.recorded {
				require.NoError(t, s.RecordScore(context.Background(), e))
			}

			out := outputs{}
			out.leaderboard, out.err = s.GetLeaderboard(context.Background(), leaderboard.GetLeaderboardRequest{
				Limit: in.limit,
			})

			tt.assert(t, out)
		})
	}
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			recorded []domain.EventAttemptCompleted
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a settlement publishes a leaderboard snapshot": {
			arrange: func() inputs {
				return inputs{
					recorded: []domain.EventAttemptCompleted{
						attemptCompleted("u1", 3),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
				require.Equal(t, domain.Leaderboard{
					Entries: []domain.LeaderboardEntry{
						{UserID: "u1", Score: 3},
					},
				}, out.publishedEvents[0].Leaderboard)
			},
		},

		"settlements within the publish interval collapse into one snapshot": {
			arrange: func() inputs {
				return inputs{
					recorded: []domain.EventAttemptCompleted{
						attemptCompleted("u1", 3),
						attemptCompleted("u2", 7),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t,
				withEventBus(eb),
			)

			for _, e := range in.recorded {
				require.NoError(t, s.RecordScore(context.Background(), e))
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func attemptCompleted(userID string, totalScore int) domain.EventAttemptCompleted {
	return domain.EventAttemptCompleted{
		Attempt: domain.Attempt{
			AttemptID: "attempt-" + userID,
			QuizID:    "quiz-1",
			UserID:    userID,
			Score:     totalScore,
		},
		QuizTitle:  "English Grammar Basics",
		TotalScore: totalScore,
	}
}
