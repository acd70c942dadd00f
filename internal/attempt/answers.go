package attempt

import (
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
)

// AnswerState is the current response to one question.
type AnswerState struct {
	QuestionID string
	Selected   map[string]struct{}
	FreeText   string
	TimeSpent  time.Duration
}

func (a *AnswerState) clone() AnswerState {
	out := *a
	out.Selected = make(map[string]struct{}, len(a.Selected))
	for id := range a.Selected {
		out.Selected[id] = struct{}{}
	}
	return out
}

// AnswerBook holds exactly one AnswerState per question of a quiz.
// It is not safe for concurrent use; Session serializes access.
type AnswerBook struct {
	questions map[string]domain.Question
	states    map[string]*AnswerState
}

// NewAnswerBook creates an empty answer for every question.
func NewAnswerBook(questions []domain.Question) *AnswerBook {
	b := &AnswerBook{
		questions: make(map[string]domain.Question, len(questions)),
		states:    make(map[string]*AnswerState, len(questions)),
	}
	for _, q := range questions {
		b.questions[q.ID] = q
		b.states[q.ID] = &AnswerState{
			QuestionID: q.ID,
			Selected:   make(map[string]struct{}),
		}
	}
	return b
}

// Len returns the number of answer records.
func (b *AnswerBook) Len() int { return len(b.states) }

// SelectSingle replaces the selection with optionID. Single-choice and true/false only.
func (b *AnswerBook) SelectSingle(questionID, optionID string) error {
	q, state, err := b.lookup(questionID)
	if err != nil {
		return err
	}
	if q.Type != domain.QuestionSingleChoice && q.Type != domain.QuestionTrueFalse {
		return fmt.Errorf("select on %s question %s: %w", q.Type, questionID, domain.ErrQuestionType)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("question %s option %s: %w", questionID, optionID, domain.ErrOptionNotFound)
	}
	state.Selected = map[string]struct{}{optionID: {}}
	return nil
}

// ToggleMulti adds optionID when absent and removes it when present. Multi-select only.
func (b *AnswerBook) ToggleMulti(questionID, optionID string) error {
	q, state, err := b.lookup(questionID)
	if err != nil {
		return err
	}
	if q.Type != domain.QuestionMultiSelect {
		return fmt.Errorf("toggle on %s question %s: %w", q.Type, questionID, domain.ErrQuestionType)
	}
	if !q.HasOption(optionID) {
		return fmt.Errorf("question %s option %s: %w", questionID, optionID, domain.ErrOptionNotFound)
	}
	if _, ok := state.Selected[optionID]; ok {
		delete(state.Selected, optionID)
	} else {
		state.Selected[optionID] = struct{}{}
	}
	return nil
}

// SetText stores value verbatim. Free-text only.
func (b *AnswerBook) SetText(questionID, value string) error {
	q, state, err := b.lookup(questionID)
	if err != nil {
		return err
	}
	if q.Type != domain.QuestionFreeText {
		return fmt.Errorf("text on %s question %s: %w", q.Type, questionID, domain.ErrQuestionType)
	}
	state.FreeText = value
	return nil
}

// AccumulateTime adds delta to the question's time spent. Negative deltas add nothing.
func (b *AnswerBook) AccumulateTime(questionID string, delta time.Duration) error {
	_, state, err := b.lookup(questionID)
	if err != nil {
		return err
	}
	if delta > 0 {
		state.TimeSpent += delta
	}
	return nil
}

// State returns a copy of the answer for questionID.
func (b *AnswerBook) State(questionID string) (AnswerState, error) {
	_, state, err := b.lookup(questionID)
	if err != nil {
		return AnswerState{}, err
	}
	return state.clone(), nil
}

// Selected returns the selected option ids in the question's option order.
func (b *AnswerBook) Selected(questionID string) ([]string, error) {
	q, state, err := b.lookup(questionID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(state.Selected))
	for _, opt := range q.Options {
		if _, ok := state.Selected[opt.ID]; ok {
			out = append(out, opt.ID)
		}
	}
	return out, nil
}

func (b *AnswerBook) lookup(questionID string) (domain.Question, *AnswerState, error) {
	state, ok := b.states[questionID]
	if !ok {
		return domain.Question{}, nil, fmt.Errorf("question %s: %w", questionID, domain.ErrQuestionNotFound)
	}
	return b.questions[questionID], state, nil
}
