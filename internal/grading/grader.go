// Package grading scores submissions against quiz content held by this service.
package grading

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// QuizSource loads quiz content, including correctness flags.
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Grader is the in-process scorer used when no remote scoring backend is configured.
type Grader struct {
	quizzes QuizSource
}

func NewGrader(quizzes QuizSource) *Grader {
	return &Grader{quizzes: quizzes}
}

// Score grades every question of the quiz. Questions missing from the submission
// count as unanswered; answers to unknown questions are ignored.
func (g *Grader) Score(ctx context.Context, _ domain.Principal, quizID string, submission domain.Submission) (domain.GradedAttempt, error) {
	quiz, err := g.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.GradedAttempt{}, err
	}

	selected := make(map[string][]string, len(submission.Answers))
	for _, a := range submission.Answers {
		selected[a.QuestionID] = a.SelectedAnswerIDs
	}

	result := domain.GradedAttempt{
		QuizID:     quiz.ID,
		Questions:  make([]domain.QuestionResult, 0, len(quiz.Questions)),
		FinishedAt: submission.FinishedAt,
	}
	for _, q := range quiz.Ordered() {
		points := q.PointValue()
		result.MaxScore += points

		qr := domain.QuestionResult{QuestionID: q.ID}
		if isCorrect(q, selected[q.ID]) {
			qr.Correct = true
			qr.Awarded = points
			result.Score += points
		}
		result.Questions = append(result.Questions, qr)
	}
	return result, nil
}

// isCorrect reports whether the selection is exactly the set of correct options.
func isCorrect(q domain.Question, selectedIDs []string) bool {
	want := make(map[string]bool)
	for _, opt := range q.Options {
		if opt.Correct {
			want[opt.ID] = true
		}
	}
	if len(want) == 0 {
		return false
	}

	got := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		if !want[id] {
			return false
		}
		got[id] = true
	}
	return len(got) == len(want)
}
