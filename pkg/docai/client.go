// Package docai provides a client for the document extraction service.
package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/harborview-partners/diligence-cli/internal/resilience"
)

const defaultBaseURL = "https://docai.internal.harborview.com"

// Client defines the document extraction operations.
type Client interface {
	// Extract submits a single document for text and field extraction.
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
}

// ExtractRequest is the request body for POST /v1/extract.
type ExtractRequest struct {
	Filename     string `json:"filename"`
	DocumentType string `json:"document_type"`
	MediaType    string `json:"media_type,omitempty"`
	Content      []byte `json:"-"`
}

type extractPayload struct {
	Filename     string `json:"filename"`
	DocumentType string `json:"document_type"`
	MediaType    string `json:"media_type,omitempty"`
	Content      string `json:"content"`
}

// ExtractResponse is the parsed extraction result.
type ExtractResponse struct {
	Text       string         `json:"text"`
	Fields     map[string]any `json:"fields"`
	Entities   []Entity       `json:"entities"`
	PageCount  int            `json:"page_count"`
	Confidence float64        `json:"confidence"`
}

// Entity is a named value the extractor located in the document.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
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

// NewClient creates a new extraction service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			OnRetry:        resilience.RetryLogger("docai", "extract"),
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

func (c *httpClient) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*ExtractResponse, error) {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) (*ExtractResponse, error) {
			return c.extract(ctx, req)
		})
	})
}

func (c *httpClient) extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "docai: rate limit wait")
	}

	payload := extractPayload{
		Filename:     req.Filename,
		DocumentType: req.DocumentType,
		MediaType:    req.MediaType,
		Content:      base64.StdEncoding.EncodeToString(req.Content),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "docai: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "docai: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "docai: request failed"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docai: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("docai: status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("docai: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ExtractResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "docai: unmarshal response")
	}
	return &result, nil
}
