package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-attempt-service/internal/domain"
)

// OpenDB returns a bun handle over pgdriver for dsn.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

type attemptResultRow struct {
	bun.BaseModel `bun:"table:attempt_results"`

	AttemptID   string                  `bun:"attempt_id,pk"`
	QuizID      string                  `bun:"quiz_id,notnull"`
	UserID      string                  `bun:"user_id,notnull"`
	DisplayName string                  `bun:"display_name,notnull"`
	Score       int                     `bun:"score,notnull"`
	MaxScore    int                     `bun:"max_score,notnull"`
	Questions   []domain.QuestionResult `bun:"questions,type:jsonb,notnull"`
	FinishedAt  time.Time               `bun:"finished_at,notnull"`
}

// ResultStore persists graded attempts in the attempt_results table.
type ResultStore struct {
	db *bun.DB
}

func NewResultStore(db *bun.DB) *ResultStore {
	return &ResultStore{db: db}
}

// RecordResult inserts a graded attempt. Re-recording the same attempt is a no-op.
func (s *ResultStore) RecordResult(ctx context.Context, result domain.GradedAttempt) error {
	row := attemptResultRow{
		AttemptID:   result.AttemptID,
		QuizID:      result.QuizID,
		UserID:      result.UserID,
		DisplayName: result.DisplayName,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Questions:   result.Questions,
		FinishedAt:  result.FinishedAt,
	}
	if row.Questions == nil {
		row.Questions = []domain.QuestionResult{}
	}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (attempt_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("record result %s: %w", result.AttemptID, err)
	}
	return nil
}

// ListResults returns a quiz's graded attempts, oldest first.
func (s *ResultStore) ListResults(ctx context.Context, quizID string) ([]domain.GradedAttempt, error) {
	var rows []attemptResultRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", quizID).
		Order("finished_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", quizID, err)
	}
	out := make([]domain.GradedAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.GradedAttempt{
			AttemptID:   row.AttemptID,
			QuizID:      row.QuizID,
			UserID:      row.UserID,
			DisplayName: row.DisplayName,
			Score:       row.Score,
			MaxScore:    row.MaxScore,
			Questions:   row.Questions,
			FinishedAt:  row.FinishedAt,
		})
	}
	return out, nil
}
