package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/attempt"
)

func TestAttemptStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewAttemptStore(newClient(mr), time.Minute)
	rec := &app.Attempt{Session: attempt.NewSession("attempt-1"), QuizID: "quiz-1"}

	store.Save(rec)
	if !mr.Exists("attempt:live:attempt-1") {
		t.Fatalf("expected redis key to be set")
	}
	if quizID, ok := store.QuizOf(context.Background(), "attempt-1"); !ok || quizID != "quiz-1" {
		t.Fatalf("expected liveness key to hold quiz id, got %q", quizID)
	}
	if got, ok := store.Get("attempt-1"); !ok || got != rec {
		t.Fatalf("expected local attempt")
	}

	store.Delete("attempt-1")
	if mr.Exists("attempt:live:attempt-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("attempt-1"); ok {
		t.Fatalf("expected local attempt removed")
	}
}

func TestAttemptStoreLivenessExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewAttemptStore(newClient(mr), time.Minute)
	store.Save(&app.Attempt{Session: attempt.NewSession("attempt-2"), QuizID: "quiz-1"})

	mr.FastForward(2 * time.Minute)
	if _, ok := store.QuizOf(context.Background(), "attempt-2"); ok {
		t.Fatalf("expected liveness key to expire")
	}
}

func TestAttemptStoreTouchKeepsLivenessKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewAttemptStore(newClient(mr), time.Minute)
	store.Save(&app.Attempt{Session: attempt.NewSession("attempt-3"), QuizID: "quiz-1"})

	for i := 0; i < 3; i++ {
		mr.FastForward(45 * time.Second)
		store.Touch("attempt-3")
	}
	if _, ok := store.QuizOf(context.Background(), "attempt-3"); !ok {
		t.Fatalf("expected touched attempt to stay live")
	}

	store.Touch("unknown")
	if mr.Exists("attempt:live:unknown") {
		t.Fatalf("touch must not create keys for unknown attempts")
	}
}

func TestAttemptStoreLivenessCoversTimeLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewAttemptStore(newClient(mr), time.Minute)
	session := attempt.NewSession("attempt-4")
	if err := session.Start(sampleQuiz()); err != nil {
		t.Fatalf("start: %v", err)
	}
	store.Save(&app.Attempt{Session: session, QuizID: "quiz-1"})

	if ttl := mr.TTL("attempt:live:attempt-4"); ttl != 90*time.Second {
		t.Fatalf("expected ttl of time limit plus idle ttl, got %v", ttl)
	}
	session.Abandon()
}
