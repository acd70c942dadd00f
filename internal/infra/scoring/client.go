// Package scoring talks to a remote grading backend over REST.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Client posts finished attempts to {baseURL}/quizzes/{quizID}/attempts.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Score sends the submission and decodes the graded attempt. Transport failures and
// non-2xx responses wrap domain.ErrScoringFailed; nothing is retried here.
func (c *Client) Score(ctx context.Context, principal domain.Principal, quizID string, submission domain.Submission) (domain.GradedAttempt, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return domain.GradedAttempt{}, fmt.Errorf("marshal submission: %w", err)
	}

	endpoint := c.baseURL + "/quizzes/" + url.PathEscape(quizID) + "/attempts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.GradedAttempt{}, fmt.Errorf("build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if principal.Token != "" {
		req.Header.Set("Authorization", "Bearer "+principal.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GradedAttempt{}, fmt.Errorf("%w: %v", domain.ErrScoringFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GradedAttempt{}, fmt.Errorf("%w: status %d: %s", domain.ErrScoringFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result domain.GradedAttempt
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.GradedAttempt{}, fmt.Errorf("%w: decode response: %v", domain.ErrScoringFailed, err)
	}
	return result, nil
}
