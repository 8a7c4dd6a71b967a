package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantifylabs/quantify/market"
)

type countingSource struct {
	static *Static

	mu    sync.Mutex
	calls int
}

func (c *countingSource) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.static.GetQuote(ctx, symbol)
}

func (c *countingSource) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestStaticSetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStatic()

	_, err := s.GetQuote(ctx, "TCS.NS")
	assert.ErrorIs(t, err, ErrUnavailable)

	s.Set(market.Quote{Symbol: "TCS.NS", Price: decimal.NewFromInt(100), Time: time.Now()})
	q, err := s.GetQuote(ctx, "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, "TCS.NS", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))

	s.Delete("TCS.NS")
	_, err = s.GetQuote(ctx, "TCS.NS")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachedServesWithinTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := &countingSource{static: NewStatic()}
	src.static.Set(market.Quote{Symbol: "TCS.NS", Price: decimal.NewFromInt(100), Time: time.Now()})

	clock := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	cached := NewCached(src, 15*time.Second)
	cached.now = func() time.Time { return clock }

	for n := 0; n < 5; n++ {
		_, err := cached.GetQuote(ctx, "TCS.NS")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.count())

	// A stale entry goes back upstream.
	clock = clock.Add(16 * time.Second)
	_, err := cached.GetQuote(ctx, "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, 2, src.count())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := &countingSource{static: NewStatic()}
	cached := NewCached(src, time.Minute)

	_, err := cached.GetQuote(ctx, "GHOST")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = cached.GetQuote(ctx, "GHOST")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, src.count())

	// Once the feed recovers the next call sees the quote.
	src.static.Set(market.Quote{Symbol: "GHOST", Price: decimal.NewFromInt(7), Time: time.Now()})
	q, err := cached.GetQuote(ctx, "GHOST")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(7)))
}

func TestErrUnavailableIsSentinel(t *testing.T) {
	t.Parallel()

	wrapped := NewStatic()
	_, err := wrapped.GetQuote(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrUnavailable))
}
