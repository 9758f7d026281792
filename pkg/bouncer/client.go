// Package bouncer provides a client for the Bouncer email verification API.
package bouncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRateLimited is returned when the API answers 429 after retries.
var ErrRateLimited = eris.New("bouncer: rate limited")

// Verification statuses returned by the API.
const (
	StatusDeliverable   = "deliverable"
	StatusRisky         = "risky"
	StatusUndeliverable = "undeliverable"
	StatusUnknown       = "unknown"
)

// Client defines the email verification operations.
type Client interface {
	Verify(ctx context.Context, email string) (*VerifyResponse, error)
}

// VerifyResponse is the parsed verification result.
type VerifyResponse struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Reason string `json:"reason"`
	Domain struct {
		Name       string `json:"name"`
		AcceptAll  string `json:"acceptAll"`
		Disposable string `json:"disposable"`
		Free       string `json:"free"`
	} `json:"domain"`
	Account struct {
		Role       string `json:"role"`
		FullMailbox string `json:"fullMailbox"`
	} `json:"account"`
}

// Option configures the Bouncer client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Bouncer client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.usebouncer.com/v1.1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

func (c *httpClient) Verify(ctx context.Context, email string) (*VerifyResponse, error) {
	if email == "" {
		return nil, eris.New("bouncer: email is required")
	}

	reqURL := fmt.Sprintf("%s/email/verify?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "bouncer: create request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("bouncer: unexpected status %d: %s", statusCode, string(body))
	}

	var result VerifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "bouncer: unmarshal response")
	}
	return &result, nil
}

func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = eris.Wrap(err, "bouncer: request failed")
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "bouncer: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("bouncer: status %d: %s", resp.StatusCode, string(body))
			lastStatus = resp.StatusCode
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, lastStatus, ErrRateLimited
	}
	return nil, lastStatus, lastErr
}
