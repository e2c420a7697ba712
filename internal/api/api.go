package api

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/proctorquiz/internal/attempt"
	"github.com/victornm/proctorquiz/internal/auth"
	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/event"
	"github.com/victornm/proctorquiz/internal/leaderboard"
	"github.com/victornm/proctorquiz/internal/ratelimit"
	"github.com/victornm/proctorquiz/internal/session"
	"github.com/victornm/proctorquiz/internal/wallet"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Session      *session.Service
	Attempt      *attempt.Service
	Wallet       *wallet.Service
	Leaderboard  *leaderboard.Service
	Limiter      *ratelimit.Limiter
	Redis        Redis
	PubsubPrefix string
	JWTSecret    string
	RetakeCost   int
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	sessions *session.Service
	attempts *attempt.Service
	wallets  *wallet.Service
	boards   *leaderboard.Service
	limiter  *ratelimit.Limiter

	redis      Redis
	prefix     string
	retakeCost int
}

func New(c Config) *API {
	a := &API{
		sessions:   c.Session,
		attempts:   c.Attempt,
		wallets:    c.Wallet,
		boards:     c.Leaderboard,
		limiter:    c.Limiter,
		redis:      c.Redis,
		prefix:     c.PubsubPrefix,
		retakeCost: c.RetakeCost,
	}

	c.Engine.GET("/healthz", func(gc *gin.Context) { gc.String(200, "ok") })

	v1 := c.Engine.Group("/v1")
	v1.GET("/leaderboard", a.GetLeaderboard)

	authed := v1.Group("", auth.Middleware(c.JWTSecret))
	authed.POST("/quizzes/:quizID/session", a.rateLimited(), a.StartSession)
	authed.POST("/quizzes/:quizID/retake", a.rateLimited(), a.Retake)
	authed.GET("/sessions/:sessionID", a.GetSession)
	authed.GET("/sessions/:sessionID/ws", a.SessionStream)
	authed.POST("/sessions/:sessionID/submit", a.rateLimited(), a.SubmitSession)
	authed.GET("/attempts/:attemptID", a.GetAttempt)
	authed.GET("/wallet", a.GetWallet)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameAttemptCompleted, func(ctx context.Context, e event.Event) error {
		return a.PublishAttemptCompleted(ctx, e.(domain.EventAttemptCompleted))
	})

	return a
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: internal error", "error", err)
	}
	c.JSON(e.HTTPStatusCode(), e)
}

// rateLimited counts the request against the caller's fixed window. A
// limiter backend failure logs and lets the request through: the limiter is
// best-effort and must not take the quiz paths down with it.
func (a *API) rateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.limiter.Disabled() {
			c.Next()
			return
		}

		ok, err := a.limiter.Allow(c.Request.Context(), auth.UserID(c))
		if err != nil {
			slog.WarnContext(c.Request.Context(), "api: rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		if !ok {
			e := errors.New(errors.CodeResourceExhausted,
				errors.WithMessagef("too many requests"))
			c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
			return
		}

		c.Next()
	}
}

type StartSessionResponse struct {
	SessionID string                `json:"session_id"`
	QuizID    string                `json:"quiz_id"`
	Title     string                `json:"title"`
	TimeLimit int                   `json:"time_limit"`
	Questions []domain.QuestionView `json:"questions"`
}

func (a *API) StartSession(c *gin.Context) {
	resp, err := a.sessions.Start(c.Request.Context(), session.StartRequest{
		QuizID: c.Param("quizID"),
		UserID: auth.UserID(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, StartSessionResponse{
		SessionID: resp.SessionID,
		QuizID:    resp.QuizID,
		Title:     resp.Title,
		TimeLimit: resp.TimeLimit,
		Questions: resp.Questions,
	})
}

func (a *API) GetSession(c *gin.Context) {
	ctrl, err := a.sessions.Get(c.Param("sessionID"), auth.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"snapshot":  ctrl.Snapshot(),
		"questions": ctrl.Questions(),
	})
}

type SubmitSessionRequest struct {
	Confirm string `json:"confirm"`
}

type SubmitSessionResponse struct {
	AttemptID   string `json:"attempt_id"`
	QuizTitle   string `json:"quiz_title"`
	TopicName   string `json:"topic_name"`
	Score       int    `json:"score"`
	CoinsEarned int    `json:"coins_earned"`
}

func (a *API) SubmitSession(c *gin.Context) {
	var req SubmitSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ctrl, err := a.sessions.Get(c.Param("sessionID"), auth.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	res, err := ctrl.Submit(c.Request.Context(), req.Confirm)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, SubmitSessionResponse{
		AttemptID:   res.AttemptID,
		QuizTitle:   res.QuizTitle,
		TopicName:   res.TopicName,
		Score:       res.Score,
		CoinsEarned: res.CoinsEarned,
	})
}

type RetakeRequest struct {
	Cost int `json:"cost"`
}

func (a *API) Retake(c *gin.Context) {
	var req RetakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	// The cost is fixed server-side; a client may echo it but not change it.
	if req.Cost != 0 && req.Cost != a.retakeCost {
		abortWithError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unexpected retake cost: %d", req.Cost)))
		return
	}

	err := a.wallets.Retake(c.Request.Context(), wallet.RetakeRequest{
		UserID: auth.UserID(c),
		QuizID: c.Param("quizID"),
		Cost:   a.retakeCost,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{"success": true})
}

type AttemptResponse struct {
	AttemptID   string            `json:"attempt_id"`
	QuizID      string            `json:"quiz_id"`
	Score       int               `json:"score"`
	TimeTaken   int               `json:"time_taken"`
	UserAnswers map[string]string `json:"user_answers"`
	CreateTime  string            `json:"create_time"`
}

func (a *API) GetAttempt(c *gin.Context) {
	att, err := a.attempts.GetAttempt(c.Request.Context(), attempt.GetAttemptRequest{
		AttemptID: c.Param("attemptID"),
		UserID:    auth.UserID(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, AttemptResponse{
		AttemptID:   att.AttemptID,
		QuizID:      att.QuizID,
		Score:       att.Score,
		TimeTaken:   att.TimeTaken,
		UserAnswers: att.UserAnswers,
		CreateTime:  att.CreateTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (a *API) GetWallet(c *gin.Context) {
	w, err := a.wallets.Balance(c.Request.Context(), auth.UserID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(200, gin.H{
		"coins":       w.Coins,
		"total_score": w.TotalScore,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	l, err := a.boards.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		Limit: limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, LeaderboardEntry{
			UserID: e.UserID,
			Score:  int(e.Score),
		})
	}

	c.JSON(200, Leaderboard{Entries: entries})
}
