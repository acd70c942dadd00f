package http

import (
	"errors"
	"fmt"
	"strings"

	"quiz-attempt-service/internal/domain"
)

var errInvalidPayload = errors.New("invalid payload")

func payloadError(res domain.ValidationResult) error {
	fields := make([]string, 0, len(res.Errors))
	for _, fe := range res.Errors {
		fields = append(fields, fe.Field+" "+fe.Rule)
	}
	return fmt.Errorf("%w: %s", errInvalidPayload, strings.Join(fields, ", "))
}
