// Package exchangerate fetches USD-based exchange rates from an
// exchangerate-api compatible endpoint.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/atmx/portfolio-engine/internal/fx"
	"github.com/atmx/portfolio-engine/internal/model"
)

const (
	DefaultBaseURL   = "https://open.er-api.com/v6/latest"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 1 // requests per second
)

// Client for exchangerate-api style endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new exchange-rate client.
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        log.With().Str("client", "exchangerate").Logger(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// latestResponse is the subset of the provider payload we read. Rates are
// decoded as json.Number so they reach decimal without a float round-trip.
type latestResponse struct {
	Result    string                 `json:"result"`
	ErrorType string                 `json:"error-type"`
	Rates     map[string]json.Number `json:"rates"`
}

// FetchRates returns one USD→X observation per requested currency. The
// resolver triangulates any other pair through USD. Currencies the
// provider does not quote are logged and skipped. An empty currency list
// returns every quoted rate.
func (c *Client) FetchRates(ctx context.Context, currencies []string) ([]model.ExchangeRate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, fx.Pivot)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", reqURL).Msg("Fetching rates")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.log.Error().Err(err).Dur("elapsed", elapsed).Msg("Exchange rate request failed")
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("Exchange rate API non-OK response")
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if body.Result != "" && body.Result != "success" {
		return nil, fmt.Errorf("API returned result %q (%s)", body.Result, body.ErrorType)
	}

	wanted := currencies
	if len(wanted) == 0 {
		for code := range body.Rates {
			wanted = append(wanted, code)
		}
	}

	ts := c.now().UTC()
	seen := make(map[string]bool, len(wanted))
	rates := make([]model.ExchangeRate, 0, len(wanted))
	for _, code := range wanted {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == fx.Pivot || seen[code] {
			continue
		}
		seen[code] = true

		raw, ok := body.Rates[code]
		if !ok {
			c.log.Warn().Str("currency", code).Msg("Rate not in API response")
			continue
		}
		r, err := decimal.NewFromString(raw.String())
		if err != nil || !r.IsPositive() {
			c.log.Warn().Str("currency", code).Str("rate", raw.String()).Msg("Ignoring unusable rate")
			continue
		}
		rates = append(rates, model.ExchangeRate{From: fx.Pivot, To: code, Rate: r, Timestamp: ts})
	}

	sort.Slice(rates, func(i, j int) bool { return rates[i].To < rates[j].To })

	c.log.Info().Int("rates", len(rates)).Dur("elapsed", elapsed).Msg("Fetched rates")
	return rates, nil
}
