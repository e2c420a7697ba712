package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proctorquiz",
		Name:      "sessions_started_total",
		Help:      "Quiz sessions started.",
	})

	ViolationsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorquiz",
		Name:      "violations_recorded_total",
		Help:      "Integrity violations recorded, by signal.",
	}, []string{"signal"})

	ForcedSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorquiz",
		Name:      "forced_submissions_total",
		Help:      "Submissions forced without user confirmation, by cause.",
	}, []string{"cause"})

	AttemptsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proctorquiz",
		Name:      "attempts_settled_total",
		Help:      "Attempts scored and persisted.",
	})
)
