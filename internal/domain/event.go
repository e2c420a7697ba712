package domain

const (
	EventNameAttemptCompleted   = "attempt.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventAttemptCompleted is published after the submission service commits an
// attempt and the wallet update. TotalScore is the user's cumulative score
// after the increment.
type EventAttemptCompleted struct {
	Attempt     Attempt
	QuizTitle   string
	CoinsEarned int
	TotalScore  int
}

func (EventAttemptCompleted) Name() string { return EventNameAttemptCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
