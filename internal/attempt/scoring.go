package attempt

const (
	coinsPerCorrect = 10
	coinsPerWrong   = 5
)

// scoreAnswers counts the questions whose submitted answer matches the
// stored correct answer. Unanswered and unknown question IDs score nothing.
func scoreAnswers(correct, submitted map[string]string) int {
	score := 0
	for questionID, answer := range submitted {
		if want, ok := correct[questionID]; ok && want == answer {
			score++
		}
	}
	return score
}

// rewardDelta converts a score into the coin credit:
// 10 coins per correct answer minus 5 per missed question, floored at zero
// so a bad attempt never debits the wallet.
func rewardDelta(score, totalQuestions int) int {
	delta := score*coinsPerCorrect - (totalQuestions-score)*coinsPerWrong
	if delta < 0 {
		return 0
	}
	return delta
}
