package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"quiz-attempt-service/internal/attempt"
	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptRepository abstracts where running attempts live (in-memory, Redis, etc).
type AttemptRepository interface {
	Save(a *Attempt)
	Get(attemptID string) (*Attempt, bool)
	Delete(attemptID string)
	// Touch marks the attempt as still in use.
	Touch(attemptID string)
}

// Scorer grades a finished attempt. Implementations may be local or remote.
type Scorer interface {
	Score(ctx context.Context, principal domain.Principal, quizID string, submission domain.Submission) (domain.GradedAttempt, error)
}

// ResultStore persists graded attempts and feeds leaderboards on startup.
type ResultStore interface {
	RecordResult(ctx context.Context, result domain.GradedAttempt) error
	ListResults(ctx context.Context, quizID string) ([]domain.GradedAttempt, error)
}

// Event types pushed to attempt subscribers.
const (
	EventTick      = "tick"
	EventSubmitted = "submitted"
	EventResult    = "result"
	EventError     = "error"
)

// Event is a server-side change in a running attempt.
type Event struct {
	Type    string
	Payload any
}

// TickPayload carries the countdown.
type TickPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

// ErrorPayload carries a failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Attempt ties a running session to its owner and subscribers.
type Attempt struct {
	Session   *attempt.Session
	Principal domain.Principal
	QuizID    string

	events      *hub[Event]
	startEvents <-chan Event
	stopEvents  func()

	mu     sync.Mutex
	result *domain.GradedAttempt
}

// ID returns the attempt id.
func (a *Attempt) ID() string { return a.Session.ID() }

// Events returns the subscription opened before the countdown started, so the
// owner of the attempt sees every tick and the auto-submission outcome.
// The returned cancel function must be called once the owner is done.
func (a *Attempt) Events() (<-chan Event, func()) {
	return a.startEvents, a.stopEvents
}

// Result returns the graded outcome once available.
func (a *Attempt) Result() (domain.GradedAttempt, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return domain.GradedAttempt{}, false
	}
	return *a.result, true
}

func (a *Attempt) setResult(r domain.GradedAttempt) {
	a.mu.Lock()
	a.result = &r
	a.mu.Unlock()
}

const hydrateTimeout = 5 * time.Second

// ServiceOption configures an AttemptService.
type ServiceOption func(*AttemptService)

// WithResultStore persists graded attempts and hydrates leaderboards from it.
func WithResultStore(store ResultStore) ServiceOption {
	return func(s *AttemptService) { s.results = store }
}

// WithClock replaces time.Now for sessions and leaderboards.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AttemptService) { s.now = now }
}

// WithTickInterval sets the countdown resolution. Defaults to one second.
func WithTickInterval(d time.Duration) ServiceOption {
	return func(s *AttemptService) {
		if d > 0 {
			s.tick = d
		}
	}
}

// AttemptService contains the quiz attempt use cases.
type AttemptService struct {
	attempts  AttemptRepository
	quizzes   QuizRepository
	scorer    Scorer
	results   ResultStore
	now       func() time.Time
	tick      time.Duration
	grading   singleflight.Group
	hydrating singleflight.Group

	boardsMu sync.Mutex
	boards   map[string]*Board
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, scorer Scorer, opts ...ServiceOption) *AttemptService {
	s := &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		scorer:   scorer,
		now:      time.Now,
		tick:     time.Second,
		boards:   make(map[string]*Board),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the quiz and opens a new attempt for principal.
// Timed attempts keep counting down after ctx ends; use Discard to stop them.
func (s *AttemptService) Start(ctx context.Context, principal domain.Principal, quizID string) (*Attempt, error) {
	if !domain.ValidateStruct(principal).Valid() {
		return nil, domain.ErrInvalidPrincipal
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuiz(quiz).Err(); err != nil {
		return nil, err
	}

	runCtx := context.WithoutCancel(ctx)
	rec := &Attempt{
		Principal: principal,
		QuizID:    quizID,
		events:    newHub[Event](16),
	}
	rec.Session = attempt.NewSession(uuid.NewString(),
		attempt.WithClock(s.now),
		attempt.OnTick(func(remaining int) {
			rec.events.publish(Event{Type: EventTick, Payload: TickPayload{RemainingSeconds: remaining}})
		}),
		attempt.OnAutoSubmit(func(payload domain.Submission) {
			s.autoSubmit(runCtx, rec, payload)
		}),
	)
	if err := rec.Session.Start(quiz); err != nil {
		return nil, err
	}
	rec.startEvents, rec.stopEvents = rec.events.subscribe(nil)
	s.attempts.Save(rec)

	if rec.Session.Timed() {
		go rec.Session.Run(runCtx, s.tick)
	}
	log.Info().
		Str("attemptId", rec.ID()).
		Str("quizId", quizID).
		Str("userId", principal.UserID).
		Bool("timed", rec.Session.Timed()).
		Msg("attempt started")
	return rec, nil
}

// SelectSingle records a single-choice or true/false answer.
func (s *AttemptService) SelectSingle(_ context.Context, attemptID, questionID, optionID string) error {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return err
	}
	return rec.Session.SelectSingle(questionID, optionID)
}

// ToggleMulti flips an option of a multi-select answer.
func (s *AttemptService) ToggleMulti(_ context.Context, attemptID, questionID, optionID string) error {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return err
	}
	return rec.Session.ToggleMulti(questionID, optionID)
}

// SetText records a free-text answer.
func (s *AttemptService) SetText(_ context.Context, attemptID, questionID, value string) error {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return err
	}
	return rec.Session.SetText(questionID, value)
}

// GoTo moves the attempt to another question. It reports false when the move was ignored.
func (s *AttemptService) GoTo(_ context.Context, attemptID string, index int) (bool, error) {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return false, err
	}
	return rec.Session.GoTo(index), nil
}

// View returns a snapshot of the attempt.
func (s *AttemptService) View(_ context.Context, attemptID string) (attempt.View, error) {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return attempt.View{}, err
	}
	return rec.Session.View(), nil
}

// Questions returns the attempt's questions in order, without correctness flags.
func (s *AttemptService) Questions(_ context.Context, attemptID string) ([]domain.PublicQuestion, error) {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return nil, err
	}
	return rec.Session.Questions(), nil
}

// Submit finalizes the attempt and grades it. Calling it again returns the stored
// result, or retries grading with the same payload if the previous call failed.
func (s *AttemptService) Submit(ctx context.Context, attemptID string) (domain.GradedAttempt, error) {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return domain.GradedAttempt{}, err
	}
	payload, err := rec.Session.Submit()
	if err != nil {
		return domain.GradedAttempt{}, err
	}
	return s.grade(ctx, rec, payload)
}

// Subscribe returns the events of an attempt that the caller did not trigger itself:
// countdown ticks and the outcome of auto-submission.
// The caller must invoke the returned cancel function.
func (s *AttemptService) Subscribe(_ context.Context, attemptID string) (<-chan Event, func(), error) {
	rec, err := s.lookup(attemptID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := rec.events.subscribe(nil)
	return ch, cancel, nil
}

// Discard stops the attempt's countdown and forgets it. Unsubmitted attempts are abandoned.
func (s *AttemptService) Discard(_ context.Context, attemptID string) {
	rec, ok := s.attempts.Get(attemptID)
	if !ok {
		return
	}
	rec.Session.Abandon()
	rec.events.close()
	s.attempts.Delete(attemptID)
	if rec.Session.Status() != attempt.StatusSubmitted {
		log.Info().Str("attemptId", attemptID).Str("quizId", rec.QuizID).Msg("attempt abandoned")
	}
}

// Leaderboard returns the standings for a quiz.
func (s *AttemptService) Leaderboard(ctx context.Context, quizID string) domain.Leaderboard {
	return s.board(ctx, quizID).Snapshot()
}

// SubscribeLeaderboard streams standings for a quiz. The caller must invoke the returned cancel function.
func (s *AttemptService) SubscribeLeaderboard(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func()) {
	return s.board(ctx, quizID).Subscribe()
}

func (s *AttemptService) lookup(attemptID string) (*Attempt, error) {
	rec, ok := s.attempts.Get(attemptID)
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	s.attempts.Touch(attemptID)
	return rec, nil
}

func (s *AttemptService) autoSubmit(ctx context.Context, rec *Attempt, payload domain.Submission) {
	log.Info().Str("attemptId", rec.ID()).Str("quizId", rec.QuizID).Msg("time limit reached, submitting")
	rec.events.publish(Event{Type: EventSubmitted, Payload: payload.Clone()})

	result, err := s.grade(ctx, rec, payload)
	if err != nil {
		log.Error().Err(err).Str("attemptId", rec.ID()).Msg("auto-submit grading failed")
		rec.events.publish(Event{Type: EventError, Payload: ErrorPayload{Message: err.Error()}})
		return
	}
	rec.events.publish(Event{Type: EventResult, Payload: result})
}

// grade scores the payload once per attempt; concurrent callers share the call.
func (s *AttemptService) grade(ctx context.Context, rec *Attempt, payload domain.Submission) (domain.GradedAttempt, error) {
	if result, ok := rec.Result(); ok {
		return result, nil
	}

	v, err, _ := s.grading.Do(rec.ID(), func() (interface{}, error) {
		if result, ok := rec.Result(); ok {
			return result, nil
		}
		result, err := s.scorer.Score(ctx, rec.Principal, rec.QuizID, payload)
		if err != nil {
			return domain.GradedAttempt{}, err
		}
		result.AttemptID = rec.ID()
		result.QuizID = rec.QuizID
		result.UserID = rec.Principal.UserID
		result.DisplayName = rec.Principal.DisplayName
		if result.FinishedAt.IsZero() {
			result.FinishedAt = payload.FinishedAt
		}
		rec.setResult(result)

		if s.results != nil {
			if err := s.results.RecordResult(ctx, result); err != nil {
				log.Error().Err(err).Str("attemptId", result.AttemptID).Msg("failed to record result")
			}
		}
		s.board(ctx, rec.QuizID).Record(result)

		log.Info().
			Str("attemptId", result.AttemptID).
			Str("quizId", result.QuizID).
			Int("score", result.Score).
			Int("maxScore", result.MaxScore).
			Msg("attempt graded")
		return result, nil
	})
	if err != nil {
		return domain.GradedAttempt{}, err
	}
	return v.(domain.GradedAttempt), nil
}

// board returns the quiz leaderboard, hydrating it from the result store on first use.
// A board whose hydration failed is handed out but not kept, so the next call retries.
func (s *AttemptService) board(ctx context.Context, quizID string) *Board {
	if b, ok := s.cachedBoard(quizID); ok {
		return b
	}
	if s.results == nil {
		return s.keepBoard(NewBoard(quizID, s.now))
	}

	v, _, _ := s.hydrating.Do(quizID, func() (interface{}, error) {
		if b, ok := s.cachedBoard(quizID); ok {
			return b, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
		defer cancel()

		b := NewBoard(quizID, s.now)
		past, err := s.results.ListResults(loadCtx, quizID)
		if err != nil {
			log.Warn().Err(err).Str("quizId", quizID).Msg("leaderboard hydration failed")
			return b, nil
		}
		b.mu.Lock()
		for _, r := range past {
			b.applyLocked(r)
		}
		b.mu.Unlock()
		return s.keepBoard(b), nil
	})
	return v.(*Board)
}

func (s *AttemptService) cachedBoard(quizID string) (*Board, bool) {
	s.boardsMu.Lock()
	defer s.boardsMu.Unlock()
	b, ok := s.boards[quizID]
	return b, ok
}

// keepBoard stores b unless another board for the quiz got there first.
func (s *AttemptService) keepBoard(b *Board) *Board {
	s.boardsMu.Lock()
	defer s.boardsMu.Unlock()
	if existing, ok := s.boards[b.quizID]; ok {
		return existing
	}
	s.boards[b.quizID] = b
	return b
}
