package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantifylabs/quantify/market"
)

// Compile-time interface check.
var _ Oracle = (*Static)(nil)

// Static serves quotes from an in-memory table. It backs tests and the
// offline demo mode; a symbol quotes at whatever the caller last Set.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]market.Quote
}

func NewStatic() *Static {
	return &Static{quotes: make(map[string]market.Quote)}
}

// Set installs or replaces the quote for q.Symbol.
func (s *Static) Set(q market.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Delete removes the quote for symbol, making it unavailable.
func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, symbol)
}

func (s *Static) GetQuote(_ context.Context, symbol string) (market.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("%w: no quote for %q", ErrUnavailable, symbol)
	}
	return q, nil
}
