package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-attempt-service/internal/app"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
// Notes:
//   - Sessions hold timers and subscribers, so the attempts themselves stay in a
//     local map; an attempt is served by the instance that started it.
//   - Redis carries a liveness key per running attempt (value: quiz id) so other
//     instances and operators can see what is in flight. The key outlives the
//     remaining time limit by ttl and is refreshed whenever the attempt is used,
//     so it only lapses for attempts idle for longer than ttl.
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Save(a *app.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID()] = a
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(a.ID()), a.QuizID, s.ttlFor(a)).Err()
}

// Touch extends the liveness key of a local attempt.
func (s *AttemptStore) Touch(attemptID string) {
	s.mu.RLock()
	a, ok := s.attempts[attemptID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	_ = s.client.Expire(context.Background(), s.key(attemptID), s.ttlFor(a)).Err()
}

func (s *AttemptStore) ttlFor(a *app.Attempt) time.Duration {
	view := a.Session.View()
	if view.RemainingSeconds == nil {
		return s.ttl
	}
	return time.Duration(*view.RemainingSeconds)*time.Second + s.ttl
}

func (s *AttemptStore) Get(attemptID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	return a, ok
}

func (s *AttemptStore) Delete(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return
	}
	delete(s.attempts, attemptID)
	_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
}

// QuizOf looks up the quiz of a live attempt from Redis, whichever instance owns it.
func (s *AttemptStore) QuizOf(ctx context.Context, attemptID string) (string, bool) {
	quizID, err := s.client.Get(ctx, s.key(attemptID)).Result()
	if err != nil {
		return "", false
	}
	return quizID, true
}

func (s *AttemptStore) key(attemptID string) string {
	return "attempt:live:" + attemptID
}
