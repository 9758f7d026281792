// Package apify wraps the Apify actor API used for Google Maps business
// discovery. The client runs an actor synchronously and returns its dataset
// items in one call.
package apify

import (
	"bytes"
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
var ErrRateLimited = eris.New("apify: rate limited")

// Client defines the Apify operations used for discovery.
type Client interface {
	// ScrapePlaces runs the Google Maps actor for one query and returns the
	// scraped place records.
	ScrapePlaces(ctx context.Context, input RunInput) ([]Place, error)
}

// RunInput is the actor input for the Google Maps scraper.
type RunInput struct {
	SearchStringsArray        []string `json:"searchStringsArray"`
	LocationQuery             string   `json:"locationQuery"`
	MaxCrawledPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch"`
	Language                  string   `json:"language,omitempty"`
	ScrapeContacts            bool     `json:"scrapeContacts,omitempty"`
	SkipClosedPlaces          bool     `json:"skipClosedPlaces,omitempty"`
}

// Place is one scraped business record from the actor's dataset.
type Place struct {
	PlaceID      string   `json:"placeId"`
	Title        string   `json:"title"`
	CategoryName string   `json:"categoryName"`
	Address      string   `json:"address"`
	Website      string   `json:"website"`
	Phone        string   `json:"phone"`
	Emails       []string `json:"emails"`
	TotalScore   float64  `json:"totalScore"`
	ReviewsCount int      `json:"reviewsCount"`
	Location     GeoPoint `json:"location"`
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Option configures the Apify client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithActorID overrides the actor the client runs.
func WithActorID(actorID string) Option {
	return func(c *httpClient) {
		c.actorID = actorID
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	actorID string
	http    *http.Client
}

// NewClient creates a new Apify client. Actor runs can take minutes, so the
// default HTTP timeout is generous; cancel the context for an earlier stop.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.apify.com/v2",
		actorID: "compass~crawler-google-places",
		http: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
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

func (c *httpClient) ScrapePlaces(ctx context.Context, input RunInput) ([]Place, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal actor input")
	}

	reqURL := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s&format=json",
		c.baseURL, url.PathEscape(c.actorID), url.QueryEscape(c.token))

	body, statusCode, err := c.retryPost(ctx, reqURL, payload)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if statusCode != http.StatusOK && statusCode != http.StatusCreated {
		return nil, eris.Errorf("apify: unexpected status %d: %s", statusCode, truncateBody(body))
	}

	var places []Place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "apify: unmarshal dataset items")
	}
	return places, nil
}

// retryPost posts the payload with exponential backoff on transient failures.
// The request is rebuilt each attempt so the body can be re-sent.
func (c *httpClient) retryPost(ctx context.Context, reqURL string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 2 * time.Second

	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "apify: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "apify: request failed")
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
			return nil, resp.StatusCode, eris.Wrap(readErr, "apify: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("apify: status %d: %s", resp.StatusCode, truncateBody(body))
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

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
