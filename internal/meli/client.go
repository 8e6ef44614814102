package meli

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
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.mercadolibre.com"
	defaultUserAgent = "giftcard-bot/0.1"

	// maxBackoff caps the exponential backoff between rate-limited retries.
	maxBackoff = 8 * time.Second
)

// ErrRateLimited is returned when the API kept answering 429 past the retry
// budget. Surfaced distinctly so callers can decide to retry later instead of
// treating it as a hard failure.
var ErrRateLimited = errors.New("meli: rate limited")

// APIError carries a non-2xx response from the marketplace.
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meli: %s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Body)
}

// Config controls how the MercadoLibre client behaves.
type Config struct {
	BaseURL       string
	AppID         string
	ClientSecret  string
	RefreshToken  string
	Timeout       time.Duration
	MaxRetries    int
	SequencePause time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
	UserAgent     string
}

// Client wraps the MercadoLibre REST endpoints the bot needs: orders, post-sale
// pack messages, questions and shipments. All calls inject a Bearer token from
// the token manager and retry with exponential backoff on 429.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	maxRetries    int
	sequencePause time.Duration
	logger        *slog.Logger
	userAgent     string
	tokens        *TokenManager
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("meli: app id and client secret are required")
	}
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, errors.New("meli: refresh token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	pause := cfg.SequencePause
	if pause <= 0 {
		pause = defaultSequencePause
	}
	c := &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		sequencePause: pause,
		logger:        logger,
		userAgent:     userAgent,
	}
	c.tokens = newTokenManager(c, cfg.AppID, cfg.ClientSecret, cfg.RefreshToken)
	return c, nil
}

// SellerID returns the authenticated seller's user id, refreshing the access
// token first if needed. Every entry point calls this before doing anything
// else: it is the fail-fast auth check.
func (c *Client) SellerID(ctx context.Context) (string, error) {
	return c.tokens.SellerID(ctx)
}

// invoke performs an authenticated request and returns the raw response body.
// 429 responses are retried with exponential backoff, honoring Retry-After
// when the marketplace provides it.
func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("meli: marshal %s %s body: %w", method, path, err)
		}
		body = b
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}

		endpoint := c.baseURL + path
		if len(query) > 0 {
			if strings.Contains(path, "?") {
				endpoint += "&" + query.Encode()
			} else {
				endpoint += "?" + query.Encode()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("meli: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("meli: %s %s: %w", method, path, err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("meli: read %s %s response: %w", method, path, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			wait := backoffDelay(resp.Header.Get("Retry-After"), attempt)
			c.logger.Warn("meli rate limited, backing off",
				"path", path,
				"wait", wait.String(),
				"attempt", attempt+1,
			)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("meli: %s %s after %d attempts: %w", method, path, c.maxRetries+1, ErrRateLimited)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				Status: resp.StatusCode,
				Method: method,
				Path:   path,
				Body:   truncate(string(data), 300),
			}
		}
		return data, nil
	}

	return nil, fmt.Errorf("meli: %s %s: %w", method, path, ErrRateLimited)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.invoke(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("meli: decode %s response: %w", path, err)
	}
	return nil
}

func backoffDelay(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	wait := time.Second << attempt
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
