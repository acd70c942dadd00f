package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationResult is the structured outcome of a validation pass.
type ValidationResult struct {
	Errors []FieldError `json:"errors"`
}

// Valid reports whether no rule failed.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Err returns nil for a valid result, otherwise an error wrapping ErrInvalidQuiz.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	parts := make([]string, 0, len(r.Errors))
	for _, fe := range r.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuiz, strings.Join(parts, "; "))
}

func (r *ValidationResult) add(field, rule, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Rule: rule, Message: message})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs the struct tag rules on v and flattens failures into field errors.
func ValidateStruct(v any) ValidationResult {
	var res ValidationResult
	err := validate.Struct(v)
	if err == nil {
		return res
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.add("", "invalid", err.Error())
		return res
	}
	for _, fe := range verrs {
		res.add(fieldPath(fe.Namespace()), fe.Tag(), ruleMessage(fe))
	}
	return res
}

// ValidateQuiz checks quiz content before an attempt can be started on it.
func ValidateQuiz(quiz Quiz) ValidationResult {
	res := ValidateStruct(quiz)

	seenQuestions := make(map[string]bool, len(quiz.Questions))
	for i, q := range quiz.Questions {
		prefix := fmt.Sprintf("questions[%d]", i)
		if q.ID != "" {
			if seenQuestions[q.ID] {
				res.add(prefix+".id", "unique", "duplicate question id "+q.ID)
			}
			seenQuestions[q.ID] = true
		}

		seenOptions := make(map[string]bool, len(q.Options))
		correct := 0
		for j, opt := range q.Options {
			if opt.ID != "" && seenOptions[opt.ID] {
				res.add(fmt.Sprintf("%s.options[%d].id", prefix, j), "unique", "duplicate option id "+opt.ID)
			}
			seenOptions[opt.ID] = true
			if opt.Correct {
				correct++
			}
		}

		switch q.Type {
		case QuestionSingleChoice:
			if correct != 1 {
				res.add(prefix+".options", "one_correct", fmt.Sprintf("expected exactly one correct option, got %d", correct))
			}
		case QuestionFreeText:
			if correct != 1 {
				res.add(prefix+".options", "one_correct", fmt.Sprintf("expected exactly one correct option, got %d", correct))
			} else if opt, _ := q.CorrectOption(); opt.Text == "" {
				res.add(prefix+".options", "answer_text", "free-text answer must not be empty")
			}
		case QuestionTrueFalse:
			if len(q.Options) != 2 {
				res.add(prefix+".options", "len", fmt.Sprintf("true/false needs two options, got %d", len(q.Options)))
			}
			if correct != 1 {
				res.add(prefix+".options", "one_correct", fmt.Sprintf("expected exactly one correct option, got %d", correct))
			}
		case QuestionMultiSelect:
			if correct == 0 {
				res.add(prefix+".options", "some_correct", "expected at least one correct option")
			}
		}
	}
	return res
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
