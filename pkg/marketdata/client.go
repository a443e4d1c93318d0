// Package marketdata provides a client for the market intelligence service.
package marketdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/harborview-partners/diligence-cli/internal/resilience"
)

const defaultBaseURL = "https://marketdata.internal.harborview.com"

// Client defines the market intelligence operations.
type Client interface {
	// GetBenchmarks returns funding and growth benchmarks for an
	// industry and stage.
	GetBenchmarks(ctx context.Context, industry, stage string) (*BenchmarkResponse, error)
	// GetCompetitors returns known competitors for a company in an
	// industry.
	GetCompetitors(ctx context.Context, company, industry string) (*CompetitorResponse, error)
}

// BenchmarkResponse is the response from GET /v1/benchmarks.
type BenchmarkResponse struct {
	Industry         string  `json:"industry"`
	Stage            string  `json:"stage"`
	AvgGrowthPct     float64 `json:"avg_growth_pct"`
	MedianValuationM float64 `json:"median_valuation_m"`
	AvgMonthlyBurnK  float64 `json:"avg_monthly_burn_k"`
	SampleSize       int     `json:"sample_size"`
}

// CompetitorResponse is the response from GET /v1/competitors.
type CompetitorResponse struct {
	Competitors   []Competitor `json:"competitors"`
	RiskFactors   []string     `json:"risk_factors"`
	Opportunities []string     `json:"opportunities"`
}

// Competitor is a single competing company.
type Competitor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stage       string `json:"stage"`
	Funding     string `json:"funding"`
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

// NewClient creates a new market intelligence client.
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
			OnRetry:        resilience.RetryLogger("marketdata", "get"),
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

func (c *httpClient) GetBenchmarks(ctx context.Context, industry, stage string) (*BenchmarkResponse, error) {
	q := url.Values{}
	q.Set("industry", industry)
	q.Set("stage", stage)

	var result BenchmarkResponse
	if err := c.get(ctx, "/v1/benchmarks", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) GetCompetitors(ctx context.Context, company, industry string) (*CompetitorResponse, error) {
	q := url.Values{}
	q.Set("company", company)
	q.Set("industry", industry)

	var result CompetitorResponse
	if err := c.get(ctx, "/v1/competitors", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return resilience.Run(ctx, c.retry, func(ctx context.Context) error {
			return c.doGet(ctx, path, q, out)
		})
	})
}

func (c *httpClient) doGet(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "marketdata: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "marketdata: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "marketdata: request failed"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "marketdata: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("marketdata: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("marketdata: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return eris.Wrap(json.Unmarshal(body, out), "marketdata: unmarshal response")
}
