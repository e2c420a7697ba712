package attempt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreAnswers(t *testing.T) {
	correct := map[string]string{
		"q1": "A",
		"q2": "B",
		"q3": "C",
	}

	tests := map[string]struct {
		submitted map[string]string

		want int
	}{
		"all correct": {
			submitted: map[string]string{"q1": "A", "q2": "B", "q3": "C"},
			want:      3,
		},

		"one wrong": {
			submitted: map[string]string{"q1": "A", "q2": "B", "q3": "D"},
			want:      2,
		},

		"unanswered questions score nothing": {
			submitted: map[string]string{"q1": "A"},
			want:      1,
		},

		"empty submission": {
			submitted: map[string]string{},
			want:      0,
		},

		"unknown question IDs are ignored": {
			submitted: map[string]string{"q1": "A", "q99": "A"},
			want:      1,
		},

		"case differences do not match": {
			submitted: map[string]string{"q1": "a"},
			want:      0,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, scoreAnswers(correct, tt.submitted))
		})
	}
}

func TestRewardDelta(t *testing.T) {
	tests := map[string]struct {
		score, total int

		want int
	}{
		"perfect score": {
			score: 3, total: 3,
			want: 30,
		},

		"two of three": {
			score: 2, total: 3,
			want: 15,
		},

		"break-even at one of three": {
			score: 1, total: 3,
			want: 0,
		},

		"all wrong never debits": {
			score: 0, total: 5,
			want: 0,
		},

		"zero of zero": {
			score: 0, total: 0,
			want: 0,
		},

		"large quiz": {
			score: 7, total: 10,
			want: 55,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, rewardDelta(tt.score, tt.total))
		})
	}
}
