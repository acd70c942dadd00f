// Package attempt runs a single quiz attempt: per-question answers, navigation,
// the optional countdown and assembly of the submission payload.
package attempt

import (
	"context"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Status is the lifecycle state of a Session.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusSubmitted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSubmitted:
		return "submitted"
	default:
		return "not_started"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a read-only snapshot of a session.
type View struct {
	AttemptID        string    `json:"attemptId"`
	QuizID           string    `json:"quizId"`
	Status           Status    `json:"status"`
	CurrentIndex     int       `json:"currentIndex"`
	QuestionCount    int       `json:"questionCount"`
	RemainingSeconds *int      `json:"remainingSeconds,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// OnAutoSubmit registers the callback invoked with the payload when the timer expires.
func OnAutoSubmit(fn func(domain.Submission)) Option {
	return func(s *Session) { s.onAutoSubmit = fn }
}

// OnTick registers an observer of the countdown.
func OnTick(fn func(remaining int)) Option {
	return func(s *Session) { s.onTick = fn }
}

// Session is one user's run through a quiz.
// Timer ticks and caller events are serialized by mu.
type Session struct {
	id           string
	now          func() time.Time
	onAutoSubmit func(domain.Submission)
	onTick       func(remaining int)

	mu        sync.Mutex
	status    Status
	quizID    string
	questions []domain.Question
	answers   *AnswerBook
	current   int
	enteredAt time.Time
	startedAt time.Time
	timer     *Timer
	payload   domain.Submission
}

// NewSession returns a session in the NotStarted state.
func NewSession(id string, opts ...Option) *Session {
	s := &Session{id: id, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the attempt id.
func (s *Session) ID() string { return s.id }

// Start creates one empty answer per question and arms the timer when the quiz is timed.
func (s *Session) Start(quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusNotStarted {
		return domain.ErrAttemptStarted
	}
	questions := quiz.Ordered()
	if len(questions) == 0 {
		return domain.ErrEmptyQuiz
	}

	now := s.now()
	s.quizID = quiz.ID
	s.questions = questions
	s.answers = NewAnswerBook(questions)
	s.current = 0
	s.startedAt = now
	s.enteredAt = now
	s.status = StatusInProgress

	if limit, ok := quiz.TimeLimit(); ok {
		s.timer = NewTimer(s.expire)
		if s.onTick != nil {
			s.timer.OnTick(s.onTick)
		}
		s.timer.Start(limit)
	}
	return nil
}

// GoTo moves to question index. Out-of-range indexes and finished sessions are
// ignored and reported as false.
func (s *Session) GoTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress || index < 0 || index >= len(s.questions) {
		return false
	}
	s.flushLocked()
	s.current = index
	return true
}

// SelectSingle picks optionID as the only answer to questionID.
func (s *Session) SelectSingle(questionID, optionID string) error {
	return s.mutate(func(b *AnswerBook) error { return b.SelectSingle(questionID, optionID) })
}

// ToggleMulti flips optionID in a multi-select answer.
func (s *Session) ToggleMulti(questionID, optionID string) error {
	return s.mutate(func(b *AnswerBook) error { return b.ToggleMulti(questionID, optionID) })
}

// SetText stores a free-text answer.
func (s *Session) SetText(questionID, value string) error {
	return s.mutate(func(b *AnswerBook) error { return b.SetText(questionID, value) })
}

// Submit finalizes the attempt and returns the payload. Later calls return the
// same payload without side effects.
func (s *Session) Submit() (domain.Submission, error) {
	payload, _, err := s.submit()
	return payload, err
}

// Tick advances the countdown by one second. Untimed sessions ignore it.
func (s *Session) Tick() {
	if t := s.timerRef(); t != nil {
		t.Tick()
	}
}

// Run drives the countdown until it expires, is cancelled, or ctx is done.
// It returns immediately for untimed sessions.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	if t := s.timerRef(); t != nil {
		t.Run(ctx, interval)
	}
}

// Abandon stops the countdown of a session that is being discarded.
func (s *Session) Abandon() {
	if t := s.timerRef(); t != nil {
		t.Cancel()
	}
}

// Timed reports whether the session runs against a time limit.
func (s *Session) Timed() bool {
	return s.timerRef() != nil
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		AttemptID:     s.id,
		QuizID:        s.quizID,
		Status:        s.status,
		CurrentIndex:  s.current,
		QuestionCount: len(s.questions),
		StartedAt:     s.startedAt,
	}
	if s.timer != nil {
		remaining := s.timer.Remaining()
		v.RemainingSeconds = &remaining
	}
	return v
}

// Questions returns the questions in attempt order, without correctness flags.
func (s *Session) Questions() []domain.PublicQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PublicQuestion, 0, len(s.questions))
	for _, q := range s.questions {
		out = append(out, q.Public())
	}
	return out
}

// Answer returns a copy of the current answer to questionID.
func (s *Session) Answer(questionID string) (AnswerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusNotStarted {
		return AnswerState{}, domain.ErrAttemptNotStarted
	}
	return s.answers.State(questionID)
}

func (s *Session) mutate(fn func(*AnswerBook) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusNotStarted:
		return domain.ErrAttemptNotStarted
	case StatusSubmitted:
		return domain.ErrAttemptSubmitted
	}
	return fn(s.answers)
}

// submit reports fresh=true only for the call that performed the transition.
// Callers get their own copy of the cached payload.
func (s *Session) submit() (domain.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusNotStarted:
		return domain.Submission{}, false, domain.ErrAttemptNotStarted
	case StatusSubmitted:
		return s.payload.Clone(), false, nil
	}

	finishedAt := s.flushLocked()
	s.status = StatusSubmitted
	if s.timer != nil {
		s.timer.Cancel()
	}
	s.payload = s.buildPayloadLocked(finishedAt)
	return s.payload.Clone(), true, nil
}

func (s *Session) expire() {
	payload, fresh, err := s.submit()
	if err != nil || !fresh {
		return
	}
	if s.onAutoSubmit != nil {
		s.onAutoSubmit(payload)
	}
}

// flushLocked charges the time since the current question was entered.
func (s *Session) flushLocked() time.Time {
	now := s.now()
	_ = s.answers.AccumulateTime(s.questions[s.current].ID, now.Sub(s.enteredAt))
	s.enteredAt = now
	return now
}

func (s *Session) buildPayloadLocked(finishedAt time.Time) domain.Submission {
	entries := make([]domain.AnswerEntry, 0, len(s.questions))
	for _, q := range s.questions {
		state := s.answers.states[q.ID]
		entry := domain.AnswerEntry{
			QuestionID:        q.ID,
			SelectedAnswerIDs: []string{},
			TimeSpent:         state.TimeSpent.Milliseconds(),
		}
		if q.Type == domain.QuestionFreeText {
			// Exact match only: no case folding, no trimming.
			if correct, ok := q.CorrectOption(); ok && state.FreeText == correct.Text {
				entry.SelectedAnswerIDs = append(entry.SelectedAnswerIDs, correct.ID)
			}
		} else {
			selected, _ := s.answers.Selected(q.ID)
			entry.SelectedAnswerIDs = append(entry.SelectedAnswerIDs, selected...)
		}
		entries = append(entries, entry)
	}
	return domain.Submission{
		Answers:    entries,
		StartedAt:  s.startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
	}
}

func (s *Session) timerRef() *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer
}
