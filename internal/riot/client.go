package riot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const (
	// API base URLs
	seaBaseURL  = "https://sea.api.riotgames.com"
	asiaBaseURL = "https://asia.api.riotgames.com"

	// Rate limits for dev key (using conservative values to be safe)
	defaultRequestsPerSecond = 15 // Actual: 20
	defaultRequestsPer2Min   = 90 // Actual: 100

	defaultMatchCount = 20
	defaultTimeout    = 10 * time.Second
)

// Endpoint names used in errors and metrics
const (
	EndpointMatchIDs = "match_ids"
	EndpointMatch    = "match"
	EndpointAccount  = "account"
)

// FetchError means the source returned no usable data for one request:
// a non-200 status, a transport failure, or a timeout. It is never retried.
type FetchError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("riot %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("riot %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client is a rate-limited Riot API client
type Client struct {
	apiKey         string
	matchBaseURL   string
	accountBaseURL string
	matchCount     int
	timeout        time.Duration
	httpClient     *http.Client
	limiter        *limiter
	logger         *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithMatchBaseURL sets the regional host for match-v1 calls
func WithMatchBaseURL(u string) Option {
	return func(c *Client) { c.matchBaseURL = u }
}

// WithAccountBaseURL sets the regional host for account-v1 calls
func WithAccountBaseURL(u string) Option {
	return func(c *Client) { c.accountBaseURL = u }
}

// WithMatchCount sets how many recent match IDs are requested per player
func WithMatchCount(n int) Option {
	return func(c *Client) { c.matchCount = n }
}

// WithTimeout bounds every outbound call
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit overrides the client-side request budget
func WithRateLimit(perSecond, per2Min int) Option {
	return func(c *Client) { c.limiter = newLimiter(perSecond, per2Min) }
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new Riot API client
func NewClient(apiKey string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("riot API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		apiKey:         apiKey,
		matchBaseURL:   seaBaseURL,
		accountBaseURL: asiaBaseURL,
		matchCount:     defaultMatchCount,
		timeout:        defaultTimeout,
		httpClient:     &http.Client{},
		limiter:        newLimiter(defaultRequestsPerSecond, defaultRequestsPer2Min),
		logger:         logger.Named("riot"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchMatchIDs returns the player's most recent match IDs, newest first
func (c *Client) FetchMatchIDs(ctx context.Context, puuid string) ([]string, error) {
	u := fmt.Sprintf("%s/tft/match/v1/matches/by-puuid/%s/ids?start=0&count=%d",
		c.matchBaseURL, url.PathEscape(puuid), c.matchCount)

	body, err := c.doRequest(ctx, EndpointMatchIDs, u)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, &FetchError{Endpoint: EndpointMatchIDs, Err: fmt.Errorf("decode match ids: %w", err)}
	}
	return ids, nil
}

// FetchMatch returns the verbatim match record bytes
func (c *Client) FetchMatch(ctx context.Context, matchID string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/tft/match/v1/matches/%s", c.matchBaseURL, url.PathEscape(matchID))

	body, err := c.doRequest(ctx, EndpointMatch, u)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &FetchError{Endpoint: EndpointMatch, Err: errors.New("response is not valid JSON")}
	}
	return json.RawMessage(body), nil
}

// GetAccountByRiotID fetches account info by game name and tag line
func (c *Client) GetAccountByRiotID(ctx context.Context, gameName, tagLine string) (*AccountResponse, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.accountBaseURL, url.PathEscape(gameName), url.PathEscape(tagLine))

	body, err := c.doRequest(ctx, EndpointAccount, u)
	if err != nil {
		return nil, err
	}

	var account AccountResponse
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, &FetchError{Endpoint: EndpointAccount, Err: fmt.Errorf("decode account: %w", err)}
	}
	return &account, nil
}

// doRequest makes one rate-limited GET bounded by the per-call timeout.
// Anything but a 200 with a readable body comes back as a *FetchError.
func (c *Client) doRequest(ctx context.Context, endpoint, u string) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("X-Riot-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by upstream",
				zap.String("endpoint", endpoint),
				zap.String("retry_after", resp.Header.Get("Retry-After")))
		}
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
