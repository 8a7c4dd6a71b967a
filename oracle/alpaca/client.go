// Package alpaca implements the price oracle on top of the Alpaca
// market-data API, used for US-listed symbols where the chart feed has
// no coverage.
package alpaca

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/quantifylabs/quantify/market"
	"github.com/quantifylabs/quantify/oracle"
)

// Compile-time interface check.
var _ oracle.Oracle = (*Client)(nil)

// Client wraps the Alpaca market-data SDK as an oracle.Oracle.
type Client struct {
	md  *marketdata.Client
	loc *time.Location
}

// NewClient builds a Client from API credentials. An empty dataURL uses
// the SDK default; timezone is the canonical zone for quote timestamps.
// The SDK's default http.Client has no timeout, so every request is
// bounded here; a hung feed must not stall a settle cycle.
func NewClient(apiKey, apiSecret, dataURL, timezone string, timeout time.Duration) (*Client, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	opts := marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &Client{md: marketdata.NewClient(opts), loc: loc}, nil
}

// GetQuote returns the latest trade for symbol. The SDK client carries
// its own HTTP timeout; ctx is checked up front so a cancelled cycle
// skips the call entirely.
func (c *Client) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}

	trade, err := c.md.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return market.Quote{}, fmt.Errorf("%w: latest trade %s: %v", oracle.ErrUnavailable, symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return market.Quote{}, fmt.Errorf("%w: no trade for %q", oracle.ErrUnavailable, symbol)
	}

	return market.Quote{
		Symbol: symbol,
		Price:  market.RoundPrice(trade.Price),
		Time:   trade.Timestamp.In(c.loc),
	}, nil
}
