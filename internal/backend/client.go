// Package backend is the REST client for the pharmacy backend. It implements the search,
// order and prescription-intake contracts with a uniform per-call timeout and bounded retry
// on transient failures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRetries   = 2
	defaultRetryUnit = time.Second
	maxBodyBytes     = 4 << 20
)

// Config holds connection settings for a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per call, retries included
	Retries    int           // extra attempts on transient failures; negative disables
	RetryUnit  time.Duration // backoff base; attempt n waits n*n units plus jitter
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the backend over HTTP/JSON.
type Client struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	retries   int
	retryUnit time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// New creates a Client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url: %w", domain.ErrValidation)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend base url %q: %w", base, domain.ErrValidation)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = defaultRetries
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if cfg.RetryUnit <= 0 {
		cfg.RetryUnit = defaultRetryUnit
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		timeout:   cfg.Timeout,
		retries:   cfg.Retries,
		retryUnit: cfg.RetryUnit,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
	}, nil
}

// do performs one logical call and returns the response body of a 2xx reply. A 404 maps to
// ErrNotFound; transport failures and other statuses map to ErrBackendUnavailable.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
	}

	start := time.Now()
	policy := retryPolicy{retries: c.retries, unit: c.retryUnit, logger: c.logger}
	resp, err := policy.do(ctx, c.http, func() (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	})
	metrics.BackendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, domain.ErrBackendUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%s %s: HTTP %d: %w", method, path, resp.StatusCode, domain.ErrBackendUnavailable)
	}
	return data, nil
}

func decode(data []byte, out any, what string) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", what, domain.ErrDecode, err)
	}
	return nil
}

// isNotFound reports whether err is the backend's not-found answer.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
