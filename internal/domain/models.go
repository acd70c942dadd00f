package domain

import (
	"sort"
	"time"
)

// QuestionType selects how answers to a question are captured.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiSelect  QuestionType = "multi_select"
	QuestionTrueFalse    QuestionType = "true_false"
	QuestionFreeText     QuestionType = "free_text"
)

// Option represents a possible answer for a question.
// For free-text questions the single correct option carries the expected text.
type Option struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question is a single quiz item.
type Question struct {
	ID               string       `json:"id" yaml:"id" validate:"required"`
	Order            int          `json:"order" yaml:"order" validate:"gte=0"`
	Type             QuestionType `json:"type" yaml:"type" validate:"required,oneof=single_choice multi_select true_false free_text"`
	Prompt           string       `json:"prompt" yaml:"prompt"`
	Points           int          `json:"points" yaml:"points" validate:"gte=0"` // defaults to 1 if zero
	TimeLimitSeconds int          `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds" validate:"gte=0"`
	Options          []Option     `json:"options" yaml:"options" validate:"required,min=1,dive"`
}

// Quiz is an ordered collection of questions. A nil TimeLimitSeconds means unlimited.
type Quiz struct {
	ID               string     `json:"id" yaml:"id" validate:"required"`
	Title            string     `json:"title" yaml:"title"`
	TimeLimitSeconds *int       `json:"timeLimitSeconds,omitempty" yaml:"timeLimitSeconds" validate:"omitempty,gt=0"`
	Questions        []Question `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

// Ordered returns the questions stably sorted by their Order field.
func (q Quiz) Ordered() []Question {
	out := make([]Question, len(q.Questions))
	copy(out, q.Questions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// TimeLimit reports the quiz time limit, if any.
func (q Quiz) TimeLimit() (int, bool) {
	if q.TimeLimitSeconds == nil {
		return 0, false
	}
	return *q.TimeLimitSeconds, true
}

// PointValue returns the question's points, treating zero as one.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectOption returns the first option flagged correct.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Public hides correctness flags so the question can be shown while an attempt is running.
// Free-text questions expose no options at all.
func (q Question) Public() PublicQuestion {
	pq := PublicQuestion{
		ID:               q.ID,
		Order:            q.Order,
		Type:             q.Type,
		Prompt:           q.Prompt,
		Points:           q.PointValue(),
		TimeLimitSeconds: q.TimeLimitSeconds,
		Options:          []PublicOption{},
	}
	if q.Type == QuestionFreeText {
		return pq
	}
	for _, opt := range q.Options {
		pq.Options = append(pq.Options, PublicOption{ID: opt.ID, Text: opt.Text})
	}
	return pq
}

// PublicOption is an option without its correctness flag.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is what a participant sees during an attempt.
type PublicQuestion struct {
	ID               string         `json:"id"`
	Order            int            `json:"order"`
	Type             QuestionType   `json:"type"`
	Prompt           string         `json:"prompt"`
	Points           int            `json:"points"`
	TimeLimitSeconds int            `json:"timeLimitSeconds,omitempty"`
	Options          []PublicOption `json:"options"`
}

// Principal identifies the caller of an attempt. The token is passed through to the
// remote scorer untouched.
type Principal struct {
	UserID      string `validate:"required"`
	DisplayName string `validate:"required"`
	Token       string
}

// AnswerEntry is one question's contribution to a submission.
type AnswerEntry struct {
	QuestionID        string   `json:"questionId"`
	SelectedAnswerIDs []string `json:"selectedAnswerIds"`
	TimeSpent         int64    `json:"timeSpent"` // milliseconds
}

// Submission is the payload handed to a scorer once an attempt is finished.
type Submission struct {
	Answers    []AnswerEntry `json:"answers"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Clone returns a deep copy that shares no slices with s.
func (s Submission) Clone() Submission {
	out := s
	if s.Answers != nil {
		out.Answers = make([]AnswerEntry, len(s.Answers))
		for i, a := range s.Answers {
			a.SelectedAnswerIDs = append([]string{}, a.SelectedAnswerIDs...)
			out.Answers[i] = a
		}
	}
	return out
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
}

// GradedAttempt is the scorer's verdict on a submission.
type GradedAttempt struct {
	AttemptID   string           `json:"attemptId"`
	QuizID      string           `json:"quizId"`
	UserID      string           `json:"userId"`
	DisplayName string           `json:"displayName"`
	Score       int              `json:"score"`
	MaxScore    int              `json:"maxScore"`
	Questions   []QuestionResult `json:"questions"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// Participant is a leaderboard member and their best score.
type Participant struct {
	UserID      string
	DisplayName string
	Score       int
	LastUpdated time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
