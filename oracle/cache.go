package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/quantifylabs/quantify/market"
)

// Compile-time interface check.
var _ Oracle = (*Cached)(nil)

// Cached wraps an Oracle with a per-symbol TTL cache so that quote-heavy
// surfaces (the HTTP API renders a price on nearly every request) do not
// hammer the upstream feed. Failures are not cached; the next call goes
// back upstream.
type Cached struct {
	src Oracle
	ttl time.Duration
	now func() time.Time // injectable for tests

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quote   market.Quote
	fetched time.Time
}

func NewCached(src Oracle, ttl time.Duration) *Cached {
	return &Cached{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cached) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	c.mu.Lock()
	if e, ok := c.entries[symbol]; ok && c.now().Sub(e.fetched) < c.ttl {
		c.mu.Unlock()
		return e.quote, nil
	}
	c.mu.Unlock()

	q, err := c.src.GetQuote(ctx, symbol)
	if err != nil {
		return market.Quote{}, err
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: q, fetched: c.now()}
	c.mu.Unlock()
	return q, nil
}
