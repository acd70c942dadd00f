package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz is returned when quiz content fails validation.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrEmptyQuiz is returned when an attempt is started on a quiz without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrInvalidPrincipal is returned when an attempt is started without a caller identity.
	ErrInvalidPrincipal = errors.New("user id and display name are required")
	// ErrAttemptNotFound is returned when an attempt id is unknown or was discarded.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptNotStarted is returned for operations on an attempt that was never started.
	ErrAttemptNotStarted = errors.New("attempt not started")
	// ErrAttemptStarted is returned when starting an attempt twice.
	ErrAttemptStarted = errors.New("attempt already started")
	// ErrAttemptSubmitted is returned when mutating an attempt after submission.
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	// ErrQuestionNotFound indicates a question ID outside the attempt's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates an option ID that does not belong to the question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrQuestionType indicates an answer operation that does not fit the question type.
	ErrQuestionType = errors.New("operation does not match question type")
	// ErrScoringFailed wraps failures of the scoring collaborator.
	ErrScoringFailed = errors.New("scoring failed")
)
