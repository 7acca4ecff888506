// Package httpupstream implements the Upstream Adapter (C1) against a
// generic HTTP market-data provider. Symbols are resolved to provider
// coin IDs through an internal map; addresses not in the map are
// reported as "no data", per §4.1.
package httpupstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tokenoracle/pricecore/internal/domain/entity"
	"github.com/tokenoracle/pricecore/internal/pkg/retry"
	"github.com/tokenoracle/pricecore/internal/ports/outbound"
)

var _ outbound.UpstreamAdapter = (*Client)(nil)

// ClientConfig holds configuration for the upstream HTTP client.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// Timeout is the per-request deadline, per §5's stated 10s upstream
	// timeout.
	Timeout time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	RateLimitPerMin int

	// CurrentPriceThreshold is the age below which "at" is served by the
	// current-price endpoint rather than the historical one. Configurable
	// per §9's open question resolution; §4.1 default is 24h.
	CurrentPriceThreshold time.Duration

	// SymbolToProviderID maps canonical token symbols (uppercase keys) and
	// addresses (lowercase keys) to the provider's coin identifiers. A
	// symbol or address absent from this map is reported as "no data".
	SymbolToProviderID map[string]string

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:               "https://api.example-marketdata.com/v3",
		Timeout:               10 * time.Second,
		MaxRetries:            3,
		InitialBackoff:        500 * time.Millisecond,
		MaxBackoff:            5 * time.Second,
		BackoffFactor:         2.0,
		RateLimitPerMin:       450,
		CurrentPriceThreshold: 24 * time.Hour,
		Logger:                slog.Default(),
	}
}

// Client implements outbound.UpstreamAdapter over HTTP.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	retryConfig retry.Config
}

// NewClient creates an upstream HTTP client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}

	defaults := ClientConfigDefaults()
	applyDefaults(&config, defaults)

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "upstream-client"),
		limiter:    limiter,
		retryConfig: retry.Config{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  config.BackoffFactor,
			Jitter:         false,
		},
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.CurrentPriceThreshold == 0 {
		config.CurrentPriceThreshold = defaults.CurrentPriceThreshold
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.SymbolToProviderID == nil {
		config.SymbolToProviderID = map[string]string{}
	}
}

// FetchSpotPrice implements the C1 contract: nil, nil for "no data", a
// *entity.TransientError for retryable failures.
func (c *Client) FetchSpotPrice(ctx context.Context, token string, network entity.Network, at time.Time) (*entity.PricePoint, error) {
	providerID, ok := c.resolveProviderID(token)
	if !ok {
		c.logger.Debug("no provider mapping for token, no data", "token", token)
		return nil, nil
	}

	age := time.Since(at)
	var raw *spotPriceResponse
	var err error
	if age <= c.config.CurrentPriceThreshold {
		raw, err = c.fetchCurrent(ctx, providerID)
	} else {
		raw, err = c.fetchHistorical(ctx, providerID, at)
	}
	if err != nil {
		var nre *nonRetryableError
		if errors.As(err, &nre) {
			return nil, nil
		}
		return nil, &entity.TransientError{Err: err}
	}
	if raw == nil {
		return nil, nil
	}

	price := math.Round(raw.PriceUSD*100) / 100
	return entity.NewPricePoint(token, network, at.Unix(), price, entity.SourceUpstream, 1.0)
}

func (c *Client) resolveProviderID(token string) (string, bool) {
	if strings.HasPrefix(token, "0x") {
		id, ok := c.config.SymbolToProviderID[strings.ToLower(token)]
		return id, ok
	}
	id, ok := c.config.SymbolToProviderID[strings.ToUpper(token)]
	return id, ok
}

type spotPriceResponse struct {
	PriceUSD float64 `json:"price_usd"`
}

func (c *Client) fetchCurrent(ctx context.Context, providerID string) (*spotPriceResponse, error) {
	endpoint := fmt.Sprintf("%s/simple/price", c.config.BaseURL)
	params := url.Values{
		"ids":           {providerID},
		"vs_currencies": {"usd"},
	}
	var response map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}
	entry, ok := response[providerID]
	if !ok {
		return nil, nil
	}
	return &spotPriceResponse{PriceUSD: entry.USD}, nil
}

func (c *Client) fetchHistorical(ctx context.Context, providerID string, at time.Time) (*spotPriceResponse, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/history", c.config.BaseURL, providerID)
	params := url.Values{
		"date": {at.UTC().Format("02-01-2006")},
	}
	var response struct {
		MarketData struct {
			CurrentPrice struct {
				USD float64 `json:"usd"`
			} `json:"current_price"`
		} `json:"market_data"`
	}
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}
	return &spotPriceResponse{PriceUSD: response.MarketData.CurrentPrice.USD}, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	fullURL := endpoint
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	isRetryable := func(err error) bool {
		var nre *nonRetryableError
		return !errors.As(err, &nre)
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying", "attempt", attempt, "maxRetries", c.retryConfig.MaxRetries, "backoff", backoff, "error", err)
	}

	return retry.DoVoid(ctx, c.retryConfig, isRetryable, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &nonRetryableError{err: fmt.Errorf("rate limiter: %w", err)}
		}
		return c.doSingleRequest(ctx, fullURL, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return &nonRetryableError{err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &nonRetryableError{err: fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body))}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &nonRetryableError{err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// nonRetryableError marks HTTP 4xx and malformed-payload failures, which
// §4.1 requires be reported as "no data" rather than TransientError.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }
