// Package yahoo implements the price oracle against the Yahoo Finance
// chart API, the same feed the simulator has always tracked NSE equities
// with.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantifylabs/quantify/market"
	"github.com/quantifylabs/quantify/oracle"
)

// DefaultURL is the public chart API endpoint.
const DefaultURL = "https://query1.finance.yahoo.com"

// Compile-time interface check.
var _ oracle.Oracle = (*Client)(nil)

// Options configures a Client. Zero values fall back to the public
// endpoint, the NSE suffix, and Asia/Kolkata timestamps.
type Options struct {
	BaseURL  string
	Suffix   string // exchange suffix appended when the symbol has none
	Timezone string // canonical zone for quote timestamps
	Timeout  time.Duration
}

// Client fetches the latest traded price from the chart API.
//
// It asks for one day of 1-minute bars and takes the last well-formed
// close, which keeps working after market hours when the realtime quote
// endpoints go quiet.
type Client struct {
	baseURL    string
	suffix     string
	loc        *time.Location
	httpClient *http.Client
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultURL
	}
	if opts.Suffix == "" {
		opts.Suffix = ".NS"
	}
	if opts.Timezone == "" {
		opts.Timezone = "Asia/Kolkata"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		suffix:  opts.Suffix,
		loc:     loc,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// chartResponse mirrors the subset of the chart API payload we read.
// Close values are pointers because the API emits nulls for minutes with
// no trades.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote returns the last traded price for symbol, rounded to two
// fractional digits, with the exchange timestamp converted to the
// client's canonical zone.
func (c *Client) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	if symbol == "" {
		return market.Quote{}, fmt.Errorf("symbol is required")
	}

	params := url.Values{}
	params.Set("interval", "1m")
	params.Set("range", "1d")

	apiURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		c.baseURL, url.PathEscape(c.normalize(symbol)), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return market.Quote{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "quantify/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return market.Quote{}, fmt.Errorf("%w: %v", oracle.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return market.Quote{}, fmt.Errorf("%w: unknown symbol %q", oracle.ErrUnavailable, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return market.Quote{}, fmt.Errorf("chart API status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return market.Quote{}, fmt.Errorf("decode response: %w", err)
	}

	if apiResp.Chart.Error != nil {
		return market.Quote{}, fmt.Errorf("%w: %s", oracle.ErrUnavailable, apiResp.Chart.Error.Code)
	}
	if len(apiResp.Chart.Result) == 0 {
		return market.Quote{}, fmt.Errorf("%w: empty result for %q", oracle.ErrUnavailable, symbol)
	}

	result := apiResp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return market.Quote{}, fmt.Errorf("%w: no quote data for %q", oracle.ErrUnavailable, symbol)
	}

	closes := result.Indicators.Quote[0].Close

	// Walk backwards to the last minute that actually traded.
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}

		observed := time.Now().In(c.loc)
		if i < len(result.Timestamp) {
			observed = time.Unix(result.Timestamp[i], 0).In(c.loc)
		}

		return market.Quote{
			Symbol: symbol,
			Price:  market.RoundPrice(*closes[i]),
			Time:   observed,
		}, nil
	}

	return market.Quote{}, fmt.Errorf("%w: no traded price for %q", oracle.ErrUnavailable, symbol)
}

// normalize appends the exchange suffix when the symbol does not already
// carry one (TCS -> TCS.NS); symbols with an explicit suffix pass through.
func (c *Client) normalize(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + c.suffix
}
