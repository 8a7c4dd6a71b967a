// Package id mints the identifiers orders and accounts are keyed by.
package id

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// generator serializes access to the monotonic entropy source, which is
// not safe for concurrent use.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var gen = generator{entropy: ulid.Monotonic(rand.Reader, 0)}

// New returns a fresh ULID string. IDs sort lexicographically by
// creation time, so ledger listings and the SQLite primary-key index
// come out in chronological order without a separate timestamp sort.
func New() string {
	gen.mu.Lock()
	defer gen.mu.Unlock()
	return ulid.MustNew(ulid.Now(), gen.entropy).String()
}
