package market

import (
	"sort"
	"sync"
	"time"
)

type cacheEntry struct {
	quote    Quote
	storedAt time.Time
}

// CacheStats describes the contents of one QuoteCache.
type CacheStats struct {
	TotalEntries int      `json:"total_entries"`
	FreshEntries int      `json:"fresh_entries"`
	TTLSeconds   float64  `json:"ttl_seconds"`
	Symbols      []string `json:"symbols"`
}

// QuoteCache stores quotes for a bounded time and tracks when each symbol
// was last fetched upstream. Entries are never evicted; staleness is only
// checked on read.
type QuoteCache struct {
	mu          sync.Mutex
	entries     map[string]cacheEntry
	lastFetch   map[string]time.Time
	ttl         time.Duration
	minInterval time.Duration
	now         func() time.Time
}

// NewQuoteCache creates a cache whose entries are fresh for ttl and whose
// throttle window is minInterval.
func NewQuoteCache(ttl, minInterval time.Duration) *QuoteCache {
	return &QuoteCache{
		entries:     make(map[string]cacheEntry),
		lastFetch:   make(map[string]time.Time),
		ttl:         ttl,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Get returns the cached quote if it is younger than the TTL.
func (c *QuoteCache) Get(symbol string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[NormalizeSymbol(symbol)]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return Quote{}, false
	}
	return cached(e.quote), true
}

// GetStale returns the cached quote regardless of age.
func (c *QuoteCache) GetStale(symbol string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[NormalizeSymbol(symbol)]
	if !ok {
		return Quote{}, false
	}
	return cached(e.quote), true
}

// Put stores q under symbol with the current time.
func (c *QuoteCache) Put(symbol string, q Quote) {
	q.FromCache = false

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[NormalizeSymbol(symbol)] = cacheEntry{quote: q, storedAt: c.now()}
}

// ShouldThrottle reports whether an upstream fetch for symbol happened
// within the minimum interval. When it returns false the current time is
// recorded as the symbol's fetch time, so the caller owns the next upstream
// request and a concurrent caller will be throttled.
func (c *QuoteCache) ShouldThrottle(symbol string) bool {
	key := NormalizeSymbol(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.lastFetch[key]; ok && now.Sub(last) < c.minInterval {
		return true
	}
	c.lastFetch[key] = now
	return false
}

// Invalidate removes symbol, or every entry when symbol is empty.
func (c *QuoteCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if symbol == "" {
		c.entries = make(map[string]cacheEntry)
		c.lastFetch = make(map[string]time.Time)
		return
	}
	key := NormalizeSymbol(symbol)
	delete(c.entries, key)
	delete(c.lastFetch, key)
}

// Stats reports entry counts at the current instant.
func (c *QuoteCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := CacheStats{
		TotalEntries: len(c.entries),
		TTLSeconds:   c.ttl.Seconds(),
		Symbols:      make([]string, 0, len(c.entries)),
	}
	for sym, e := range c.entries {
		if now.Sub(e.storedAt) < c.ttl {
			stats.FreshEntries++
		}
		stats.Symbols = append(stats.Symbols, sym)
	}
	sort.Strings(stats.Symbols)
	return stats
}

func cached(q Quote) Quote {
	q.FromCache = true
	return q
}
