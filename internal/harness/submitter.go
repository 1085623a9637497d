// ABOUTME: HTTP submitter posting activities to the agent under test with a bearer token.
// ABOUTME: Returns the raw response body; empty bodies signal out-of-band delivery.

package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/coven-harness/internal/activity"
	"github.com/2389/coven-harness/internal/auth"
)

// maxReplyBody caps inline reply bodies. Agents answering a test prompt
// have no business exceeding this.
const maxReplyBody = 16 << 20

// HTTPSubmitter posts JSON activities to a single agent endpoint.
type HTTPSubmitter struct {
	url    string
	tokens auth.TokenProvider
	client *http.Client
}

// NewHTTPSubmitter creates a submitter for the agent endpoint. tokens
// may be nil for unauthenticated local agents.
func NewHTTPSubmitter(url string, tokens auth.TokenProvider) *HTTPSubmitter {
	return &HTTPSubmitter{
		url:    url,
		tokens: tokens,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Submit posts the activity and returns the response body. Non-2xx
// statuses are errors; the agent never gets partial credit for them.
func (s *HTTPSubmitter) Submit(ctx context.Context, act activity.Activity) ([]byte, error) {
	payload, err := json.Marshal(act)
	if err != nil {
		return nil, fmt.Errorf("encoding activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("acquiring bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// truncate bounds error message bodies.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
