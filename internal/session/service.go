package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/telemetry"
)

// Catalog supplies quiz content for session start. The loaded quiz carries
// correct answers; the service hands out only the stripped projection.
type Catalog interface {
	LoadQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
}

type Config struct {
	Catalog   Catalog
	Submitter Submitter

	// NewTickerFunc overrides the countdown ticker, for tests.
	NewTickerFunc func(d time.Duration) Ticker
}

// Service owns the registry of live quiz sessions. One Controller per
// active attempt; terminated sessions are dropped from the registry once
// their result has been read.
type Service struct {
	catalog   Catalog
	submitter Submitter
	newTicker func(d time.Duration) Ticker

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewService(c Config) *Service {
	return &Service{
		catalog:   c.Catalog,
		submitter: c.Submitter,
		newTicker: c.NewTickerFunc,
		sessions:  make(map[string]*Controller),
	}
}

type StartRequest struct {
	QuizID string
	UserID string
}

type StartResponse struct {
	SessionID string
	QuizID    string
	Title     string
	TimeLimit int
	Questions []domain.QuestionView
}

// Start loads the quiz, creates a session controller and starts its clock.
// The response never contains correct answers.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	quiz, err := s.catalog.LoadQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	if quiz.TimeLimit <= 0 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s has no time limit", req.QuizID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ctrl := newController(id.String(), quiz, req.UserID, s.submitter, s.newTicker)
	ctrl.onTerminated = s.evict

	s.mu.Lock()
	s.sessions[ctrl.sessionID] = ctrl
	s.mu.Unlock()

	ctrl.start()
	telemetry.SessionsStarted.Inc()

	return &StartResponse{
		SessionID: ctrl.sessionID,
		QuizID:    quiz.QuizID,
		Title:     quiz.Title,
		TimeLimit: quiz.TimeLimit,
		Questions: ctrl.Questions(),
	}, nil
}

// Get returns the controller for a session, checking ownership.
func (s *Service) Get(sessionID, userID string) (*Controller, error) {
	s.mu.RLock()
	ctrl, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}

	if ctrl.UserID() != userID {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("session %s does not belong to the caller", sessionID))
	}

	return ctrl, nil
}

// evict drops a terminated session from the registry. The controller has
// already closed itself at this point.
func (s *Service) evict(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Remove evicts a session from the registry and tears it down.
func (s *Service) Remove(sessionID string) {
	s.mu.Lock()
	ctrl, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		ctrl.Close()
	}
}

// Shutdown tears down every live session. Pending attempts are not
// submitted: an interrupted server is indistinguishable from a crashed one
// and must not settle half-finished attempts.
func (s *Service) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Controller)
	s.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.Close()
	}
}
