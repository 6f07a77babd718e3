// Package fixtures is the REST client for an API-Football compatible fixture
// feed. It implements domain.SnapshotGateway.
package fixtures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

const (
	apiKeyHeader      = "x-apisports-key"
	rateLimitKey      = "fixtures"
	sharedLimitWindow = time.Second
)

// Client fetches live fixture snapshots.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// Exactly one of local/shared is used. shared is preferred when set so
	// that every replica draws from the same per-second budget.
	local       *rate.Limiter
	shared      domain.RateLimiter
	sharedLimit int

	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSharedRateLimiter makes the client take its request budget from a
// distributed limiter instead of the in-process token bucket.
func WithSharedRateLimiter(rl domain.RateLimiter, perSecond int) Option {
	return func(c *Client) {
		if rl != nil && perSecond > 0 {
			c.shared = rl
			c.sharedLimit = perSecond
		}
	}
}

// NewClient creates a fixture feed client.
//
// baseURL is the API root, e.g. "https://v3.football.api-sports.io".
// requestsPerSecond caps outgoing requests; 0 disables local limiting.
func NewClient(baseURL, apiKey string, requestsPerSecond float64, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.local = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSnapshot returns the current state of the match with the given id.
//
// Errors wrap domain.ErrNotFound when the feed does not know the fixture,
// domain.ErrRateLimited when the quota is exhausted, domain.ErrExternalTimeout
// when ctx expires, and domain.ErrSnapshotUnavailable for any other transport
// or server failure.
func (c *Client) FetchSnapshot(ctx context.Context, matchID string) (domain.FixtureSnapshot, error) {
	if err := c.wait(ctx); err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("fixtures: fetch %s: %w", matchID, classifyTransportErr(ctx, err))
	}

	params := url.Values{}
	params.Set("id", matchID)

	body, err := c.doGet(ctx, "/fixtures?"+params.Encode())
	if err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("fixtures: fetch %s: %w", matchID, err)
	}

	var resp APIFixtureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("fixtures: decode %s: %w: %v", matchID, domain.ErrSnapshotMalformed, err)
	}
	if errs := apiErrors(resp.Errors); errs != nil {
		return domain.FixtureSnapshot{}, fmt.Errorf("fixtures: fetch %s: %w", matchID, feedError(errs))
	}
	if len(resp.Response) == 0 {
		return domain.FixtureSnapshot{}, fmt.Errorf("fixtures: %w: match=%s", domain.ErrNotFound, matchID)
	}

	return resp.Response[0].ToDomainSnapshot(matchID, c.now().UTC()), nil
}

// wait blocks until the rate limiter admits one request.
func (c *Client) wait(ctx context.Context) error {
	if c.shared != nil {
		return c.shared.Wait(ctx, rateLimitKey, c.sharedLimit, sharedLimitWindow)
	}
	if c.local != nil {
		return c.local.Wait(ctx)
	}
	return nil
}

// doGet sends an authenticated GET request to the feed.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportErr(ctx, fmt.Errorf("read response: %w", err))
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// classifyTransportErr wraps err with ErrExternalTimeout when the deadline
// was hit, and with ErrSnapshotUnavailable otherwise.
func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrExternalTimeout, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrExternalTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrSnapshotUnavailable, err)
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrSnapshotUnavailable, statusCode, bodyStr)
	}
}

// feedError maps the feed's in-body errors onto domain errors.
func feedError(errs map[string]string) error {
	parts := make([]string, 0, len(errs))
	for k, v := range errs {
		parts = append(parts, k+": "+v)
	}
	msg := strings.Join(parts, "; ")
	if _, ok := errs["rateLimit"]; ok {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	}
	if _, ok := errs["requests"]; ok {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	}
	if _, ok := errs["token"]; ok {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	}
	return fmt.Errorf("%w: %s", domain.ErrSnapshotUnavailable, msg)
}

// Compile-time interface check.
var _ domain.SnapshotGateway = (*Client)(nil)
