package domain

import "time"

// Topic groups quizzes for catalog browsing and result redirects.
type Topic struct {
	TopicID string
	Name    string
}

// Quiz is immutable during a session. Questions keep their authored order.
type Quiz struct {
	QuizID    string
	TopicID   string
	TopicName string
	Title     string
	// TimeLimit is the whole-quiz budget in seconds.
	TimeLimit int
	Questions []Question
}

type Question struct {
	QuestionID string
	Text       string
	Options    []string
	// CorrectAnswer never leaves the server. The session projection
	// (QuestionView) omits it.
	CorrectAnswer string
}

// QuestionView is the answer-stripped projection handed to a session.
type QuestionView struct {
	QuestionID string   `json:"question_id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

// View strips the correct answer from a question.
func (q Question) View() QuestionView {
	return QuestionView{
		QuestionID: q.QuestionID,
		Text:       q.Text,
		Options:    q.Options,
	}
}

// Attempt is the persisted record of one completed scoring pass over a quiz.
// Written exactly once by the submission service, never mutated afterwards.
type Attempt struct {
	AttemptID string
	QuizID    string
	UserID    string
	Score     int
	// TimeTaken is elapsed seconds, i.e. time limit minus remaining.
	TimeTaken   int
	UserAnswers map[string]string
	CreateTime  time.Time
}

// Wallet is the reward-currency view of a user account.
// Coins never go negative; TotalScore only grows.
type Wallet struct {
	UserID     string
	Coins      int
	TotalScore int
}

// Leaderboard represents users ranked by cumulative score, descending.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID string
	Score  float64
}
