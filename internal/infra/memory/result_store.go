package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// ResultStore keeps graded attempts in process memory, grouped by quiz.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]domain.GradedAttempt
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]domain.GradedAttempt)}
}

func (s *ResultStore) RecordResult(_ context.Context, result domain.GradedAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.QuizID] = append(s.results[result.QuizID], result)
	return nil
}

func (s *ResultStore) ListResults(_ context.Context, quizID string) ([]domain.GradedAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GradedAttempt, len(s.results[quizID]))
	copy(out, s.results[quizID])
	return out, nil
}
