package app

import (
	"sort"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Board is the in-memory leaderboard of one quiz. It keeps each user's best graded score.
type Board struct {
	quizID       string
	now          func() time.Time
	mu           sync.RWMutex
	participants map[string]*domain.Participant
	updates      *hub[domain.Leaderboard]
}

// NewBoard is exported for infrastructure and tests that need a standalone board.
func NewBoard(quizID string, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{
		quizID:       quizID,
		now:          now,
		participants: make(map[string]*domain.Participant),
		updates:      newHub[domain.Leaderboard](8),
	}
}

// Record applies a graded attempt and broadcasts the new standings.
func (b *Board) Record(result domain.GradedAttempt) domain.Leaderboard {
	b.mu.Lock()
	b.applyLocked(result)
	lb := b.snapshotLocked()
	b.mu.Unlock()

	b.updates.publish(lb)
	return lb
}

// Snapshot returns the current standings.
func (b *Board) Snapshot() domain.Leaderboard {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Subscribe returns a channel primed with the current standings.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Board) Subscribe() (<-chan domain.Leaderboard, func()) {
	return b.updates.subscribe(func() (domain.Leaderboard, bool) {
		return b.Snapshot(), true
	})
}

func (b *Board) applyLocked(result domain.GradedAttempt) {
	at := result.FinishedAt
	if at.IsZero() {
		at = b.now()
	}
	participant, ok := b.participants[result.UserID]
	if !ok {
		b.participants[result.UserID] = &domain.Participant{
			UserID:      result.UserID,
			DisplayName: result.DisplayName,
			Score:       result.Score,
			LastUpdated: at,
		}
		return
	}
	if result.DisplayName != "" {
		participant.DisplayName = result.DisplayName
	}
	if result.Score > participant.Score {
		participant.Score = result.Score
		participant.LastUpdated = at
	}
}

func (b *Board) snapshotLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(b.participants))
	for _, participant := range b.participants {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			Score:       participant.Score,
		})
	}

	// Score desc, then whoever reached it first, then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := b.participants[entries[i].UserID]
		pj := b.participants[entries[j].UserID]
		if !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Leaderboard{
		QuizID:    b.quizID,
		Entries:   entries,
		UpdatedAt: b.now(),
	}
}
