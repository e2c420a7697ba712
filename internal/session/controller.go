package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/victornm/proctorquiz/internal/domain"
	"github.com/victornm/proctorquiz/internal/errors"
	"github.com/victornm/proctorquiz/internal/telemetry"
)

type State string

const (
	StateActive     State = "active"
	StateTerminated State = "terminated"
)

// Cause records which path terminated the session.
type Cause string

const (
	CauseManual     Cause = "manual"
	CauseTimeout    Cause = "timeout"
	CauseViolations Cause = "violations"
	CauseNavigation Cause = "navigation"
)

// confirmToken must be typed by the user before a manual submit goes through.
const confirmToken = "confirm"

const forceSubmitTimeout = 10 * time.Second

// SubmitRequest is the finished attempt handed to the settlement layer.
type SubmitRequest struct {
	QuizID  string
	UserID  string
	Answers map[string]string
	// Elapsed is timeLimit minus remaining, in seconds.
	Elapsed int
}

type SubmitResult struct {
	AttemptID   string
	QuizTitle   string
	TopicName   string
	Score       int
	CoinsEarned int
}

// Submitter settles a finished attempt. Implemented by the attempt service.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// Snapshot is the state pushed to session subscribers after every mutation.
type Snapshot struct {
	SessionID        string            `json:"session_id"`
	State            State             `json:"state"`
	RemainingSeconds int               `json:"remaining_seconds"`
	QuestionIndex    int               `json:"question_index"`
	Answers          map[string]string `json:"answers"`
	Violations       int               `json:"violations"`
	FullscreenExited bool              `json:"fullscreen_exited"`
	Cause            Cause             `json:"cause,omitempty"`
	AttemptID        string            `json:"attempt_id,omitempty"`
	TopicName        string            `json:"topic_name,omitempty"`
}

// Controller owns the mutable state of one quiz attempt: the answer map, the
// question pointer, the countdown and the integrity monitor. Every
// termination path (manual confirm, clock expiry, violation threshold, back
// navigation) funnels into submit, whose single-flight guard makes the
// settlement call at-most-once per attempt for this process.
type Controller struct {
	sessionID string
	quizID    string
	userID    string
	questions []domain.QuestionView
	byID      map[string]struct{}
	timeLimit int

	clock     *Clock
	submitter Submitter

	// onTerminated is invoked once, after the final snapshot has been
	// broadcast, so the registry can drop the session.
	onTerminated func(sessionID string)

	mu         sync.Mutex
	answers    map[string]string
	index      int
	remaining  int
	monitor    monitorState
	state      State
	cause      Cause
	submitting bool
	result     *SubmitResult
	subs       map[chan Snapshot]struct{}
}

func newController(sessionID string, quiz *domain.Quiz, userID string, submitter Submitter, newTicker func(time.Duration) Ticker) *Controller {
	views := make([]domain.QuestionView, 0, len(quiz.Questions))
	byID := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		views = append(views, q.View())
		byID[q.QuestionID] = struct{}{}
	}

	return &Controller{
		sessionID: sessionID,
		quizID:    quiz.QuizID,
		userID:    userID,
		questions: views,
		byID:      byID,
		timeLimit: quiz.TimeLimit,
		clock:     NewClock(quiz.TimeLimit, newTicker),
		submitter: submitter,
		answers:   make(map[string]string),
		remaining: quiz.TimeLimit,
		state:     StateActive,
		subs:      make(map[chan Snapshot]struct{}),
	}
}

func (c *Controller) start() {
	c.clock.Start(c.onTick, c.onExpire)
}

func (c *Controller) SessionID() string                { return c.sessionID }
func (c *Controller) QuizID() string                   { return c.quizID }
func (c *Controller) UserID() string                   { return c.userID }
func (c *Controller) Questions() []domain.QuestionView { return c.questions }
func (c *Controller) TimeLimit() int                   { return c.timeLimit }

// SelectAnswer records or overwrites the user's choice for a question. The
// option is never checked for correctness here: correct answers do not exist
// on this side of the submission boundary.
func (c *Controller) SelectAnswer(questionID, option string) error {
	if _, ok := c.byID[questionID]; !ok {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown question: %s", questionID))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTerminated {
		return errSessionTerminated()
	}

	c.answers[questionID] = option
	c.broadcastLocked()
	return nil
}

// Next moves the question pointer forward, clamped at the last question.
func (c *Controller) Next() {
	c.moveTo(func(i int) int { return i + 1 })
}

// Previous moves the question pointer back, clamped at the first question.
func (c *Controller) Previous() {
	c.moveTo(func(i int) int { return i - 1 })
}

// Goto jumps straight to a question, as the sidebar indicator allows.
func (c *Controller) Goto(index int) {
	c.moveTo(func(int) int { return index })
}

func (c *Controller) moveTo(next func(int) int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTerminated {
		return
	}

	i := next(c.index)
	if i < 0 || i >= len(c.questions) {
		return
	}

	c.index = i
	c.broadcastLocked()
}

// Signal feeds one proctoring event through the violation reducer. Signals
// arriving after termination are ignored.
func (c *Controller) Signal(ctx context.Context, sig Signal) {
	c.mu.Lock()

	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}

	next, action := reduce(c.monitor, sig)
	c.monitor = next

	switch action {
	case actionNone:
		c.mu.Unlock()

	case actionWarn:
		telemetry.ViolationsRecorded.WithLabelValues(string(sig)).Inc()
		c.broadcastLocked()
		c.mu.Unlock()

	case actionConfirmLeave:
		c.mu.Unlock()
		slog.InfoContext(ctx, "session: unload attempt", "session_id", c.sessionID)

	case actionForceSubmit:
		cause := CauseViolations
		if sig == SignalBackNavigation {
			cause = CauseNavigation
		} else {
			telemetry.ViolationsRecorded.WithLabelValues(string(sig)).Inc()
		}
		c.broadcastLocked()
		c.mu.Unlock()
		c.forceSubmit(cause)
	}
}

// Submit is the manual submission path. The confirmation token protects
// against accidental premature submission; forced paths bypass it.
func (c *Controller) Submit(ctx context.Context, confirm string) (*SubmitResult, error) {
	if strings.ToLower(strings.TrimSpace(confirm)) != confirmToken {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("type %q to submit", confirmToken))
	}

	return c.submit(ctx, CauseManual)
}

func (c *Controller) onTick(remaining int) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.remaining = remaining
	c.broadcastLocked()
	c.mu.Unlock()
}

func (c *Controller) onExpire() {
	c.forceSubmit(CauseTimeout)
}

// forceSubmit runs the non-interactive termination paths. A failed settlement
// resets the guard inside submit, so the user keeps a retry affordance.
func (c *Controller) forceSubmit(cause Cause) {
	telemetry.ForcedSubmissions.WithLabelValues(string(cause)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), forceSubmitTimeout)
	defer cancel()

	if _, err := c.submit(ctx, cause); err != nil {
		slog.ErrorContext(ctx, "session: forced submission failed",
			"session_id", c.sessionID,
			"cause", cause,
			"error", err,
		)
	}
}

// submit is the single funnel for every termination path. Calling it on a
// terminated session returns the existing result; calling it while another
// submission is in flight is rejected without side effects.
func (c *Controller) submit(ctx context.Context, cause Cause) (*SubmitResult, error) {
	c.mu.Lock()

	if c.state == StateTerminated {
		r := c.result
		c.mu.Unlock()
		return r, nil
	}

	if c.submitting {
		c.mu.Unlock()
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("submission already in flight: session=%s", c.sessionID))
	}

	c.submitting = true
	req := SubmitRequest{
		QuizID:  c.quizID,
		UserID:  c.userID,
		Answers: copyAnswers(c.answers),
		Elapsed: c.timeLimit - c.remaining,
	}
	c.mu.Unlock()

	res, err := c.submitter.Submit(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		// Reset the guard so the user can retry instead of being stuck
		// in a phantom "already submitted" state.
		c.submitting = false
		return nil, err
	}

	c.state = StateTerminated
	c.cause = cause
	c.result = res
	c.clock.Stop()
	c.broadcastLocked()
	c.closeSubsLocked()

	if c.onTerminated != nil {
		defer c.onTerminated(c.sessionID)
	}

	return res, nil
}

// Subscribe registers for state snapshots. The caller must invoke cancel to
// avoid leaking the channel; the channel is closed on termination.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	c.mu.Lock()
	if c.state == StateTerminated {
		ch <- c.snapshotLocked()
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close tears the session down without submitting: the clock goroutine is
// stopped and subscribers are released. Used when the registry evicts a
// session; a terminated session is already closed.
func (c *Controller) Close() {
	c.clock.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSubsLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:        c.sessionID,
		State:            c.state,
		RemainingSeconds: c.remaining,
		QuestionIndex:    c.index,
		Answers:          copyAnswers(c.answers),
		Violations:       c.monitor.Violations,
		FullscreenExited: c.monitor.FullscreenExited,
		Cause:            c.cause,
	}
	if c.result != nil {
		s.AttemptID = c.result.AttemptID
		s.TopicName = c.result.TopicName
	}
	return s
}

func (c *Controller) broadcastLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest snapshot for slow subscribers rather
			// than blocking the session.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (c *Controller) closeSubsLocked() {
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan Snapshot]struct{})
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func errSessionTerminated() error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session already terminated"))
}
