// Package tavily implements websearch.Provider against the Tavily search API.
package tavily

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/metrics"
	"github.com/poiesic/searchgate/websearch"
	"github.com/sony/gobreaker"
)

const (
	providerName = "tavily"

	// DefaultEndpoint is Tavily's search API.
	DefaultEndpoint = "https://api.tavily.com/search"
	// DefaultTimeout bounds a single search request.
	DefaultTimeout = 10 * time.Second

	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
)

// ErrMissingAPIKey is returned when the client is created without an API key.
var ErrMissingAPIKey = errors.New("tavily api key is required")

// Client is a Tavily search client guarded by a circuit breaker.
type Client struct {
	apiKey      string
	endpoint    string
	searchDepth string
	timeout     time.Duration

	failureThreshold uint32
	openTimeout      time.Duration

	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ websearch.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithEndpoint overrides the search endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) error {
		if strings.TrimSpace(endpoint) == "" {
			return errors.New("endpoint cannot be empty")
		}
		c.endpoint = endpoint
		return nil
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithSearchDepth sets Tavily's search_depth (basic or advanced).
func WithSearchDepth(depth string) Option {
	return func(c *Client) error {
		if depth != "basic" && depth != "advanced" {
			return fmt.Errorf("unsupported search depth %q", depth)
		}
		c.searchDepth = depth
		return nil
	}
}

// WithCircuitBreaker sets how many consecutive failures open the circuit and
// how long it stays open before a trial request.
func WithCircuitBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *Client) error {
		if failures == 0 || openFor <= 0 {
			return errors.New("circuit breaker needs a positive threshold and timeout")
		}
		c.failureThreshold = failures
		c.openTimeout = openFor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "tavily")
		return nil
	}
}

// NewClient creates a Tavily client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:           apiKey,
		endpoint:         DefaultEndpoint,
		searchDepth:      "basic",
		timeout:          DefaultTimeout,
		failureThreshold: defaultFailureThreshold,
		openTimeout:      defaultOpenTimeout,
		logger:           slog.Default().With("component", "tavily"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.http = resty.New().
		SetHeader("User-Agent", "searchgate/1.0").
		SetHeader("Content-Type", "application/json").
		SetTimeout(c.timeout).
		SetRetryCount(0)

	threshold := c.failureThreshold
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerName,
		MaxRequests: 1,
		Timeout:     c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			metrics.SetCircuitBreakerState(name, to.String())
		},
	})
	metrics.SetCircuitBreakerState(providerName, gobreaker.StateClosed.String())

	return c, nil
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeImages bool   `json:"include_images"`
	IncludeAnswer bool   `json:"include_answer"`
	SearchDepth   string `json:"search_depth"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Images  []string       `json:"images"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Search queries Tavily. Every failure, including an open circuit, is a
// *websearch.UpstreamError.
func (c *Client) Search(ctx context.Context, query string, maxResults int, includeImages bool) (*core.WebResults, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	start := time.Now()
	status := "success"
	defer func() {
		metrics.RecordExternalProviderLatency(providerName, status, time.Since(start).Seconds())
	}()

	out, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, searchRequest{
			APIKey:        c.apiKey,
			Query:         query,
			MaxResults:    maxResults,
			IncludeImages: includeImages,
			IncludeAnswer: true,
			SearchDepth:   c.searchDepth,
		})
	})
	if err != nil {
		status = "error"
		var upstream *websearch.UpstreamError
		if errors.As(err, &upstream) {
			return nil, err
		}
		// open circuit or too many half-open requests
		c.logger.Warn("tavily search rejected", "err", err)
		return nil, &websearch.UpstreamError{Provider: providerName, Err: err}
	}

	res := out.(*searchResponse)
	results := &core.WebResults{
		Query:   query,
		Answer:  res.Answer,
		Images:  res.Images,
		Results: make([]core.WebResult, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		results.Results = append(results.Results, core.WebResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return results, nil
}

func (c *Client) do(ctx context.Context, body searchRequest) (*searchResponse, error) {
	var res searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&res).
		Post(c.endpoint)
	if err != nil {
		c.logger.Error("failed to query tavily", "endpoint", c.endpoint, "err", err)
		return nil, &websearch.UpstreamError{Provider: providerName, Err: err}
	}
	if resp.IsError() {
		c.logger.Error("tavily returned an error", "status", resp.StatusCode(), "response", resp.String())
		return nil, &websearch.UpstreamError{
			Provider:   providerName,
			StatusCode: resp.StatusCode(),
			Err:        errors.New(strings.TrimSpace(resp.String())),
		}
	}
	return &res, nil
}

// State reports the circuit breaker state.
func (c *Client) State() string {
	return c.breaker.State().String()
}
