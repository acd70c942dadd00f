package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"quiz-attempt-service/internal/domain"
)

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// readQuizFile loads and validates every quiz in a YAML document.
func readQuizFile(path string) ([]domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file quizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Quizzes) == 0 {
		return nil, fmt.Errorf("%s: no quizzes", path)
	}
	seen := make(map[string]bool, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if err := domain.ValidateQuiz(quiz).Err(); err != nil {
			return nil, fmt.Errorf("quiz %q: %w", quiz.ID, err)
		}
		if seen[quiz.ID] {
			return nil, fmt.Errorf("quiz %q: %w: duplicate id", quiz.ID, domain.ErrInvalidQuiz)
		}
		seen[quiz.ID] = true
	}
	return file.Quizzes, nil
}

func quizzesByID(quizzes []domain.Quiz) map[string]domain.Quiz {
	out := make(map[string]domain.Quiz, len(quizzes))
	for _, quiz := range quizzes {
		out[quiz.ID] = quiz
	}
	return out
}
