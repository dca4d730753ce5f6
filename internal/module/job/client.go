package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aditus/server/internal/shared/config"
)

// AIClient performs the model calls extraction and personalization
// delegate to.
type AIClient interface {
	// ExtractJob turns raw posting content into a structured posting and
	// reports the tokens consumed.
	ExtractJob(ctx context.Context, content string) (*Posting, int64, error)

	// PersonalizeCV tailors a profile to a posting and reports the
	// tokens consumed.
	PersonalizeCV(ctx context.Context, profile, posting string) (string, int64, error)
}

// HTTPAIClient talks to the AI service over HTTP behind a circuit
// breaker, so a degraded model endpoint sheds load fast instead of
// tying up request handlers.
type HTTPAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// NewHTTPAIClient creates a new AI client.
func NewHTTPAIClient(cfg *config.AIConfig) *HTTPAIClient {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	circuitTimeout := cfg.CircuitTimeout
	if circuitTimeout == 0 {
		circuitTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "ai",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     circuitTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	return &HTTPAIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker[json.RawMessage](settings),
	}
}

type extractRequest struct {
	Model   string `json:"model"`
	Content string `json:"content"`
}

type extractResponse struct {
	Job        Posting `json:"job"`
	TokensUsed int64   `json:"tokens_used"`
}

type personalizeRequest struct {
	Model   string `json:"model"`
	Profile string `json:"profile"`
	Posting string `json:"posting"`
}

type personalizeResponse struct {
	Content    string `json:"content"`
	TokensUsed int64  `json:"tokens_used"`
}

func (c *HTTPAIClient) ExtractJob(ctx context.Context, content string) (*Posting, int64, error) {
	raw, err := c.post(ctx, "/v1/extract", &extractRequest{
		Model:   c.model,
		Content: content,
	})
	if err != nil {
		return nil, 0, err
	}

	var resp extractResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode extract response: %w", err)
	}
	return &resp.Job, resp.TokensUsed, nil
}

func (c *HTTPAIClient) PersonalizeCV(ctx context.Context, profile, posting string) (string, int64, error) {
	raw, err := c.post(ctx, "/v1/personalize", &personalizeRequest{
		Model:   c.model,
		Profile: profile,
		Posting: posting,
	})
	if err != nil {
		return "", 0, err
	}

	var resp personalizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", 0, fmt.Errorf("decode personalize response: %w", err)
	}
	return resp.Content, resp.TokensUsed, nil
}

func (c *HTTPAIClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return c.breaker.Execute(func() (json.RawMessage, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ai request: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("ai %s: http %d: %s", path, resp.StatusCode, truncate(raw, 200))
		}
		return json.RawMessage(raw), nil
	})
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
