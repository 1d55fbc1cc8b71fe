// Package apiclient executes endpoint requests against the remote expense API.
package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/illmade-knight/go-expensesync/pkg/endpoints"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is where the expense API is served in local development.
const DefaultBaseURL = "http://localhost:8000/api/expenses"

// Config holds configuration for the API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewConfigDefaults provides a config with sensible defaults. EXPENSE_API_URL
// overrides the base URL.
func NewConfigDefaults() *Config {
	cfg := &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
	if u := os.Getenv("EXPENSE_API_URL"); u != "" {
		cfg.BaseURL = u
	}
	return cfg
}

// Client sends endpoint requests over HTTP. It performs no retries.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg *Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api client config cannot be nil")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}

	logger.Info().Str("base_url", cfg.BaseURL).Msg("API client initialized.")
	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "APIClient").Logger(),
	}, nil
}

// Do executes req and returns the response body of a 2xx response.
// Transport failures are returned as *NetworkError and non-2xx responses as
// *ServerError.
func (c *Client) Do(ctx context.Context, req endpoints.Request) ([]byte, error) {
	r := c.http.R().SetContext(ctx)
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		c.logger.Error().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("Request failed.")
		return nil, &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}

	logEvent := c.logger.Debug()
	if !resp.IsSuccess() {
		logEvent = c.logger.Warn()
	}
	logEvent.
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed.")

	if !resp.IsSuccess() {
		return nil, &ServerError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}
	return resp.Body(), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}
