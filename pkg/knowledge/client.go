// Package knowledge provides a client for the due diligence knowledge base.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/harborview-partners/diligence-cli/internal/resilience"
)

const defaultBaseURL = "https://knowledge.internal.harborview.com"

// Client defines the knowledge base operations.
type Client interface {
	// GetGuidance returns a tailored due diligence checklist for a
	// company and verdict.
	GetGuidance(ctx context.Context, req GuidanceRequest) (*GuidanceResponse, error)
}

// GuidanceRequest is the request body for POST /v1/guidance.
type GuidanceRequest struct {
	Company  string `json:"company"`
	Industry string `json:"industry"`
	Stage    string `json:"stage"`
	Verdict  string `json:"verdict"`
}

// GuidanceResponse is the parsed knowledge base answer.
type GuidanceResponse struct {
	Steps           []Step   `json:"steps"`
	Recommendations []string `json:"recommendations"`
	RiskFactors     []string `json:"risk_factors"`
	NextActions     []string `json:"next_actions"`
}

// Step is a single ordered due diligence task.
type Step struct {
	Order       int    `json:"order"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default service base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a new knowledge base client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			OnRetry:        resilience.RetryLogger("knowledge", "guidance"),
		},
		breaker: resilience.NewBreaker(resilience.CircuitConfig{
			ShouldTrip: resilience.IsTransient,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) GetGuidance(ctx context.Context, req GuidanceRequest) (*GuidanceResponse, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*GuidanceResponse, error) {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) (*GuidanceResponse, error) {
			return c.getGuidance(ctx, req)
		})
	})
}

func (c *httpClient) getGuidance(ctx context.Context, req GuidanceRequest) (*GuidanceResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "knowledge: rate limit wait")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/guidance", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "knowledge: request failed"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "knowledge: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("knowledge: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("knowledge: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result GuidanceResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "knowledge: unmarshal response")
	}
	return &result, nil
}
