package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/proctorquiz/internal/api"
	"github.com/victornm/proctorquiz/internal/attempt"
	"github.com/victornm/proctorquiz/internal/catalog"
	"github.com/victornm/proctorquiz/internal/event"
	"github.com/victornm/proctorquiz/internal/leaderboard"
	"github.com/victornm/proctorquiz/internal/ratelimit"
	"github.com/victornm/proctorquiz/internal/session"
	"github.com/victornm/proctorquiz/internal/telemetry"
	"github.com/victornm/proctorquiz/internal/wallet"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Auth struct {
		JWTSecret string
	}

	Quiz struct {
		RetakeCost int
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		// Ratelimit may be left unconfigured; the limiter then runs in
		// disabled mode and every request passes.
		Ratelimit struct {
			Addrs  []string
			Pass   string
			Prefix string
			Limit  int
			Window time.Duration
		}
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
			ratelimit   redis.UniversalClient
		}

		postgres struct {
			quiz *pgxpool.Pool
		}
	}

	service struct {
		catalog     *catalog.Service
		attempt     *attempt.Service
		wallet      *wallet.Service
		session     *session.Service
		leaderboard *leaderboard.Service
		limiter     *ratelimit.Limiter
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	if len(s.c.Redis.Ratelimit.Addrs) == 0 {
		slog.Warn("server: rate limiter redis not configured, limiter disabled")
		return nil
	}

	s.infra.redis.ratelimit, err = connect(s.c.Redis.Ratelimit.Addrs, s.c.Redis.Ratelimit.Pass)
	if err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres.Quiz
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	s.infra.postgres.quiz = db
	return nil
}

func (s *Server) initService() {
	s.service.catalog = catalog.NewService(catalog.Config{
		DB: s.infra.postgres.quiz,
	})

	s.service.attempt = attempt.NewService(attempt.Config{
		DB:       s.infra.postgres.quiz,
		EventBus: s.eb,
	})

	s.service.wallet = wallet.NewService(wallet.Config{
		DB: s.infra.postgres.quiz,
	})

	s.service.session = session.NewService(session.Config{
		Catalog:   s.service.catalog,
		Submitter: attemptSubmitter{s.service.attempt},
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.limiter = ratelimit.New(ratelimit.Config{
		Redis:  s.infra.redis.ratelimit,
		Prefix: s.c.Redis.Ratelimit.Prefix,
		Limit:  s.c.Redis.Ratelimit.Limit,
		Window: s.c.Redis.Ratelimit.Window,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Attempt:      s.service.attempt,
		Wallet:       s.service.wallet,
		Leaderboard:  s.service.leaderboard,
		Limiter:      s.service.limiter,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		JWTSecret:    s.c.Auth.JWTSecret,
		RetakeCost:   s.c.Quiz.RetakeCost,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.session.Shutdown()
	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}

// attemptSubmitter adapts the attempt service to the session engine's
// settlement interface.
type attemptSubmitter struct {
	svc *attempt.Service
}

func (a attemptSubmitter) Submit(ctx context.Context, req session.SubmitRequest) (*session.SubmitResult, error) {
	resp, err := a.svc.Submit(ctx, attempt.SubmitRequest{
		QuizID:  req.QuizID,
		UserID:  req.UserID,
		Answers: req.Answers,
		Elapsed: req.Elapsed,
	})
	if err != nil {
		return nil, err
	}

	return &session.SubmitResult{
		AttemptID:   resp.AttemptID,
		QuizTitle:   resp.QuizTitle,
		TopicName:   resp.TopicName,
		Score:       resp.Score,
		CoinsEarned: resp.CoinsEarned,
	}, nil
}
