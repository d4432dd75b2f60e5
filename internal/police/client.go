package police

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// APIError carries the HTTP status and a snippet of the response body for
// failed Incident API calls.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("incident api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the external Incident API that owns case records after
// submission. Transport auth and retries live here, not in the workspace.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *log.Logger
	retry      RetryPolicy
}

// NewClient constructs an Incident API client. endpoint example:
// https://api.veritasprotocol.example/v1 — the trailing slash is trimmed.
func NewClient(endpoint, token string, logger *log.Logger) (*Client, error) {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		return nil, fmt.Errorf("incident api: endpoint required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		endpoint:   strings.TrimRight(ep, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		retry:      DefaultRetryPolicy(),
	}, nil
}

// SetRetryPolicy overrides the default retry policy.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

// CreateIncident posts the payload to the Incident API and returns the
// server-assigned case id. Server errors (5xx) and transport failures are
// retried with backoff; client errors (4xx) are surfaced immediately.
func (c *Client) CreateIncident(ctx context.Context, p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("incident api: marshal payload: %w", err)
	}

	var result CreateResult
	err = retry(ctx, c.retry, func() error {
		return c.postIncident(ctx, data, &result)
	})
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("incident api: response missing id")
	}

	c.logger.Printf("incident created id=%s type=%s", result.ID, p.IncidentType)
	return result.ID, nil
}

func (c *Client) postIncident(ctx context.Context, body []byte, out *CreateResult) error {
	url := c.endpoint + "/incidents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("incident api: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failures are worth another attempt.
		return &RetryableError{Err: fmt.Errorf("incident api: request error: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("incident api: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodySnippet(respBody)}
		if resp.StatusCode >= 500 {
			return &RetryableError{Err: apiErr}
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("incident api: decode response: %w", err)
	}
	return nil
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
