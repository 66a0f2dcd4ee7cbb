package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// OutcomeCache is a process-lifetime TTL cache for accepted geocode
// outcomes. Entries are replaced wholesale, never mutated in place; an
// expired entry reads as absent and is evicted lazily on the lookup that
// finds it.
type OutcomeCache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]outcomeEntry
}

type outcomeEntry struct {
	outcome  *Outcome
	storedAt time.Time
}

// NewOutcomeCache creates a cache with the given TTL.
func NewOutcomeCache(ttl time.Duration) *OutcomeCache {
	return newOutcomeCacheWithClock(ttl, clockwork.NewRealClock())
}

func newOutcomeCacheWithClock(ttl time.Duration, clock clockwork.Clock) *OutcomeCache {
	return &OutcomeCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]outcomeEntry),
	}
}

// cacheKey returns SHA-256 hex of the normalized address and the options
// that affect the upstream answer.
func cacheKey(address string, opts Options) string {
	normalized := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(strings.Join(strings.Fields(address), " ")),
		strings.ToLower(opts.Country),
		strings.ToLower(opts.Language),
	)
	if b := opts.Bounds; b != nil {
		normalized += fmt.Sprintf("|%f,%f,%f,%f", b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	}
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

func (c *OutcomeCache) get(address string, opts Options) (*Outcome, bool) {
	key := cacheKey(address, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Since(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.outcome, true
}

func (c *OutcomeCache) put(address string, opts Options, outcome *Outcome) {
	key := cacheKey(address, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = outcomeEntry{outcome: outcome, storedAt: c.clock.Now()}
}
