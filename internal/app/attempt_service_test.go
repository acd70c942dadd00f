package app_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/attempt"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/grading"
	"quiz-attempt-service/internal/infra/memory"
)

var alice = domain.Principal{UserID: "u1", DisplayName: "Alice", Token: "t-1"}

func TestStartSubmitGrades(t *testing.T) {
	service, _ := newService(sampleQuiz(nil), nil)
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.SelectSingle(ctx, rec.ID(), "q1", "q1-a"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := service.ToggleMulti(ctx, rec.ID(), "q2", "q2-b"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := service.ToggleMulti(ctx, rec.ID(), "q2", "q2-c"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := service.SetText(ctx, rec.ID(), "q3", "42"); err != nil {
		t.Fatalf("text: %v", err)
	}

	result, err := service.Submit(ctx, rec.ID())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 6 || result.MaxScore != 6 {
		t.Fatalf("expected 6/6, got %d/%d", result.Score, result.MaxScore)
	}
	if result.AttemptID != rec.ID() || result.UserID != "u1" || result.DisplayName != "Alice" {
		t.Fatalf("result not attributed to attempt: %+v", result)
	}

	view, err := service.View(ctx, rec.ID())
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Status != attempt.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", view.Status)
	}
	if err := service.SelectSingle(ctx, rec.ID(), "q1", "q1-b"); !errors.Is(err, domain.ErrAttemptSubmitted) {
		t.Fatalf("expected submitted error, got %v", err)
	}

	lb := service.Leaderboard(ctx, "quiz-1")
	if len(lb.Entries) != 1 || lb.Entries[0].Score != 6 {
		t.Fatalf("unexpected leaderboard: %+v", lb)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	scorer := &recordingScorer{}
	service, _ := newService(sampleQuiz(nil), scorer)
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	first, err := service.Submit(ctx, rec.ID())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.Submit(ctx, rec.ID())
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results")
	}
	if n := len(scorer.calls()); n != 1 {
		t.Fatalf("expected scorer called once, got %d", n)
	}
}

func TestSubmitRetriesWithSamePayload(t *testing.T) {
	// The scorer scribbles over the submission it is handed before failing.
	scorer := &recordingScorer{failures: 1, tamper: true}
	service, _ := newService(sampleQuiz(nil), scorer)
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = service.SelectSingle(ctx, rec.ID(), "q1", "q1-a")

	if _, err := service.Submit(ctx, rec.ID()); !errors.Is(err, domain.ErrScoringFailed) {
		t.Fatalf("expected scoring failure, got %v", err)
	}
	if _, ok := rec.Result(); ok {
		t.Fatalf("failed grading must not store a result")
	}
	if _, err := service.Submit(ctx, rec.ID()); err != nil {
		t.Fatalf("retry: %v", err)
	}

	calls := scorer.calls()
	if len(calls) != 2 {
		t.Fatalf("expected two scorer calls, got %d", len(calls))
	}
	if !reflect.DeepEqual(calls[0], calls[1]) {
		t.Fatalf("retry changed the payload:\n%+v\n%+v", calls[0], calls[1])
	}
}

func TestStartRejectsInvalidPrincipal(t *testing.T) {
	service, _ := newService(sampleQuiz(nil), nil)
	_, err := service.Start(context.Background(), domain.Principal{UserID: "u1"}, "quiz-1")
	if !errors.Is(err, domain.ErrInvalidPrincipal) {
		t.Fatalf("expected invalid principal, got %v", err)
	}
}

func TestStartUnknownQuiz(t *testing.T) {
	service, _ := newService(sampleQuiz(nil), nil)
	_, err := service.Start(context.Background(), alice, "missing")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestStartRejectsInvalidQuiz(t *testing.T) {
	quiz := sampleQuiz(nil)
	quiz.Questions[0].Options[1].Correct = true
	service, _ := newService(quiz, nil)
	_, err := service.Start(context.Background(), alice, "quiz-1")
	if !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz, got %v", err)
	}
}

func TestGoToReportsIgnoredMoves(t *testing.T) {
	service, _ := newService(sampleQuiz(nil), nil)
	ctx := context.Background()
	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	questions, err := service.Questions(ctx, rec.ID())
	if err != nil || len(questions) != 3 {
		t.Fatalf("expected three questions, got %d (%v)", len(questions), err)
	}
	if ok, err := service.GoTo(ctx, rec.ID(), 2); err != nil || !ok {
		t.Fatalf("expected move to last question, got %v %v", ok, err)
	}
	if ok, _ := service.GoTo(ctx, rec.ID(), 3); ok {
		t.Fatalf("out-of-range move must be ignored")
	}
	view, _ := service.View(ctx, rec.ID())
	if view.CurrentIndex != 2 {
		t.Fatalf("expected index 2, got %d", view.CurrentIndex)
	}
	if _, err := service.GoTo(ctx, "nope", 0); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestAutoSubmitPublishesResult(t *testing.T) {
	limit := 3
	service, _ := newService(sampleQuiz(&limit), nil, app.WithTickInterval(20*time.Millisecond))
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := service.Subscribe(ctx, rec.ID())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	var seen []string
	timeout := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events closed early, saw %v", seen)
			}
			seen = append(seen, ev.Type)
			if ev.Type == app.EventResult {
				result := ev.Payload.(domain.GradedAttempt)
				if result.AttemptID != rec.ID() {
					t.Fatalf("unexpected result %+v", result)
				}
				done = true
			}
		case <-timeout:
			t.Fatalf("no result event, saw %v", seen)
		}
	}
	if seen[0] != app.EventTick {
		t.Fatalf("expected countdown ticks first, saw %v", seen)
	}
	if seen[len(seen)-2] != app.EventSubmitted {
		t.Fatalf("expected submitted before result, saw %v", seen)
	}

	if err := service.SetText(ctx, rec.ID(), "q3", "42"); !errors.Is(err, domain.ErrAttemptSubmitted) {
		t.Fatalf("expected submitted error, got %v", err)
	}
	stored, ok := rec.Result()
	if !ok {
		t.Fatalf("expected stored result")
	}
	again, err := service.Submit(ctx, rec.ID())
	if err != nil || !reflect.DeepEqual(stored, again) {
		t.Fatalf("manual submit after expiry should return stored result: %v", err)
	}
}

func TestDiscardForgetsAttempt(t *testing.T) {
	limit := 60
	service, store := newService(sampleQuiz(&limit), nil)
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel, err := service.Subscribe(ctx, rec.ID())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	service.Discard(ctx, rec.ID())
	if store.Len() != 0 {
		t.Fatalf("expected attempt removed")
	}
	if _, err := service.View(ctx, rec.ID()); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	select {
	case _, ok := <-events:
		if ok {
			// drain a tick that raced the discard
			if _, ok := <-events; ok {
				t.Fatalf("expected closed events")
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("events not closed")
	}
	service.Discard(ctx, rec.ID())
}

func TestLeaderboardHydratesFromResultStore(t *testing.T) {
	results := memory.NewResultStore()
	ctx := context.Background()
	_ = results.RecordResult(ctx, domain.GradedAttempt{
		AttemptID: "old", QuizID: "quiz-1", UserID: "u2", DisplayName: "Bob", Score: 3,
		FinishedAt: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC),
	})
	service, _ := newService(sampleQuiz(nil), nil, app.WithResultStore(results))

	updates, cancel := service.SubscribeLeaderboard(ctx, "quiz-1")
	defer cancel()
	initial := <-updates
	if len(initial.Entries) != 1 || initial.Entries[0].UserID != "u2" {
		t.Fatalf("expected hydrated entry, got %+v", initial)
	}

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = service.SelectSingle(ctx, rec.ID(), "q1", "q1-a")
	if _, err := service.Submit(ctx, rec.ID()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case lb := <-updates:
		if len(lb.Entries) != 2 || lb.Entries[0].UserID != "u2" {
			t.Fatalf("unexpected standings: %+v", lb.Entries)
		}
	case <-time.After(time.Second):
		t.Fatalf("no leaderboard update")
	}

	stored, _ := results.ListResults(ctx, "quiz-1")
	if len(stored) != 2 {
		t.Fatalf("expected result persisted, got %d", len(stored))
	}
}

func TestSubmitReturnsCallerOwnedPayload(t *testing.T) {
	service, _ := newService(sampleQuiz(nil), nil)
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = service.SelectSingle(ctx, rec.ID(), "q1", "q1-a")

	first, err := rec.Session.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	first.Answers[0].SelectedAnswerIDs[0] = "tampered"

	second, err := rec.Session.Submit()
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if got := second.Answers[0].SelectedAnswerIDs; len(got) != 1 || got[0] != "q1-a" {
		t.Fatalf("cached payload changed through a returned copy: %v", got)
	}
	result, err := service.Submit(ctx, rec.ID())
	if err != nil || result.Score != 1 {
		t.Fatalf("expected q1 graded from the untouched payload, got %d (%v)", result.Score, err)
	}
}

func TestStartEventsSeeEarlyAutoSubmit(t *testing.T) {
	limit := 1
	service, _ := newService(sampleQuiz(&limit), nil, app.WithTickInterval(time.Millisecond))
	ctx := context.Background()

	rec, err := service.Start(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	events, cancel := rec.Events()
	defer cancel()

	// Let the attempt expire before anyone reads.
	deadline := time.Now().Add(2 * time.Second)
	for len(events) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("attempt did not auto-submit")
		}
		time.Sleep(5 * time.Millisecond)
	}

	var seen []string
	for len(events) > 0 {
		seen = append(seen, (<-events).Type)
	}
	want := []string{app.EventTick, app.EventSubmitted, app.EventResult}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
}

func TestLeaderboardRetriesFailedHydration(t *testing.T) {
	ctx := context.Background()
	results := &flakyResults{ResultStore: memory.NewResultStore(), failures: 1}
	_ = results.RecordResult(ctx, domain.GradedAttempt{AttemptID: "old", QuizID: "quiz-1", UserID: "u2", DisplayName: "Bob", Score: 3})
	service, _ := newService(sampleQuiz(nil), nil, app.WithResultStore(results))

	if lb := service.Leaderboard(ctx, "quiz-1"); len(lb.Entries) != 0 {
		t.Fatalf("expected empty standings while the store fails, got %+v", lb.Entries)
	}
	if lb := service.Leaderboard(ctx, "quiz-1"); len(lb.Entries) != 1 || lb.Entries[0].UserID != "u2" {
		t.Fatalf("expected standings hydrated once the store recovers, got %+v", lb.Entries)
	}
}

func TestLeaderboardHydrationOutlivesCancelledRequest(t *testing.T) {
	results := &flakyResults{ResultStore: memory.NewResultStore()}
	_ = results.RecordResult(context.Background(), domain.GradedAttempt{AttemptID: "old", QuizID: "quiz-1", UserID: "u2", DisplayName: "Bob", Score: 3})
	service, _ := newService(sampleQuiz(nil), nil, app.WithResultStore(results))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if lb := service.Leaderboard(cancelled, "quiz-1"); len(lb.Entries) != 1 {
		t.Fatalf("expected hydration despite cancelled caller, got %+v", lb.Entries)
	}
	if lb := service.Leaderboard(context.Background(), "quiz-1"); len(lb.Entries) != 1 {
		t.Fatalf("expected hydrated standings, got %+v", lb.Entries)
	}
}

// flakyResults fails ListResults a set number of times and honours ctx like a database would.
type flakyResults struct {
	*memory.ResultStore
	mu       sync.Mutex
	failures int
}

func (r *flakyResults) ListResults(ctx context.Context, quizID string) ([]domain.GradedAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.ResultStore.ListResults(ctx, quizID)
}

func newService(quiz domain.Quiz, scorer app.Scorer, opts ...app.ServiceOption) (*app.AttemptService, *memory.AttemptStore) {
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute)
	if scorer == nil {
		scorer = grading.NewGrader(quizzes)
	}
	store := memory.NewAttemptStore()
	return app.NewAttemptService(store, quizzes, scorer, opts...), store
}

type recordingScorer struct {
	mu       sync.Mutex
	failures int
	tamper   bool
	seen     []domain.Submission
}

func (s *recordingScorer) Score(_ context.Context, _ domain.Principal, quizID string, submission domain.Submission) (domain.GradedAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, submission.Clone())
	if s.tamper {
		for i := range submission.Answers {
			submission.Answers[i].QuestionID = "tampered"
			if len(submission.Answers[i].SelectedAnswerIDs) > 0 {
				submission.Answers[i].SelectedAnswerIDs[0] = "tampered"
			}
		}
	}
	if s.failures > 0 {
		s.failures--
		return domain.GradedAttempt{}, domain.ErrScoringFailed
	}
	return domain.GradedAttempt{QuizID: quizID, Score: 1, MaxScore: 6}, nil
}

func (s *recordingScorer) calls() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Submission, len(s.seen))
	copy(out, s.seen)
	return out
}

func sampleQuiz(limit *int) domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		Title:            "Mixed",
		TimeLimitSeconds: limit,
		Questions: []domain.Question{
			{
				ID: "q1", Order: 1, Type: domain.QuestionSingleChoice, Points: 1,
				Options: []domain.Option{{ID: "q1-a", Text: "Paris", Correct: true}, {ID: "q1-b", Text: "Lyon"}},
			},
			{
				ID: "q2", Order: 2, Type: domain.QuestionMultiSelect, Points: 2,
				Options: []domain.Option{{ID: "q2-a", Text: "1"}, {ID: "q2-b", Text: "2", Correct: true}, {ID: "q2-c", Text: "3", Correct: true}},
			},
			{
				ID: "q3", Order: 3, Type: domain.QuestionFreeText, Points: 3,
				Options: []domain.Option{{ID: "q3-answer", Text: "42", Correct: true}},
			},
		},
	}
}
