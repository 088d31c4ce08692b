package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/pubsync/internal/reference"
)

const (
	// DefaultBaseURL is the provider API base URL.
	DefaultBaseURL = "https://api.scholarly-provider.org/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second against the provider.
	DefaultRateLimit = 5.0

	// DefaultPageSize is used when the caller passes no page-size hint.
	DefaultPageSize = 100

	// MaxPages bounds pagination against a misbehaving provider.
	MaxPages = 1000

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 512
)

// Client is a rate-limited HTTP client for the provider works API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authenticated requests.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit sets the request rate in requests per second.
// A non-positive value disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a new provider client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchResult is the normalized output of a full paginated fetch.
type FetchResult struct {
	Records []reference.RawRecord
	Dropped int // Works discarded for missing required fields
	Pages   int // Pages requested
}

// FetchCandidates pages through every work for externalID and normalizes them.
// A researcher with no works yields an empty result, not an error.
func (c *Client) FetchCandidates(ctx context.Context, externalID string, pageSizeHint int) (*FetchResult, error) {
	perPage := pageSizeHint
	if perPage <= 0 {
		perPage = DefaultPageSize
	}

	result := &FetchResult{Records: []reference.RawRecord{}}
	for page := 1; page <= MaxPages; page++ {
		wp, err := c.fetchPage(ctx, externalID, page, perPage)
		if err != nil {
			return nil, err
		}
		result.Pages++

		records, dropped := NormalizeAll(wp.Items)
		result.Records = append(result.Records, records...)
		result.Dropped += dropped

		if len(wp.Items) < perPage || (wp.Total > 0 && page*perPage >= wp.Total) {
			return result, nil
		}
	}
	return nil, fmt.Errorf("%w: more than %d pages for %s", ErrInvalidResponse, MaxPages, externalID)
}

// fetchPage requests a single page of works.
func (c *Client) fetchPage(ctx context.Context, externalID string, page, perPage int) (*WorksPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrFetchFailure, err)
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	endpoint := fmt.Sprintf("%s/researchers/%s/works?%s", c.baseURL, url.PathEscape(externalID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrFetchFailure, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp, externalID); err != nil {
		return nil, err
	}

	var wp WorksPage
	if err := json.NewDecoder(resp.Body).Decode(&wp); err != nil {
		return nil, fmt.Errorf("%w: decoding page %d: %v", ErrInvalidResponse, page, err)
	}
	return &wp, nil
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response, externalID string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, externalID)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg, ExternalID: externalID}
	}
	return nil
}
