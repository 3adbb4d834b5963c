package answer

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/koopa0/secondbrain/internal/log"
)

// CacheDuration is how long a cached response stays valid.
const CacheDuration = 24 * time.Hour

// similarWordThreshold is the minimum word overlap for FindSimilar to
// accept a cached key as a near-duplicate.
const similarWordThreshold = 2

// CacheEntry is one cached generation result.
type CacheEntry struct {
	Response   string
	CreatedAt  time.Time
	TokenCount int
}

// ResponseCache caches generation results keyed by (query, context).
//
// The key is the whitespace-stripped concatenation of query and context,
// so two pairs that differ only in whitespace collide. That is accepted
// behavior, kept on purpose: hardening it would change cache hit rates.
//
// Expiry is lazy on Get, plus a periodic sweep so the map does not grow
// unbounded. Safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	order   []string // insertion order, for the deterministic FindSimilar tie-break

	ttl    time.Duration
	now    func() time.Time
	logger log.Logger

	done     chan struct{}
	startSw  sync.Once
	stopSw   sync.Once
}

// NewResponseCache creates a cache with the given TTL (CacheDuration
// when zero).
func NewResponseCache(ttl time.Duration, logger log.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = CacheDuration
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &ResponseCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Get returns the cached entry for (query, contextText) if present and
// not expired. Expired entries are removed on the spot.
func (c *ResponseCache) Get(query, contextText string) (CacheEntry, bool) {
	key := cacheKey(query, contextText)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	if c.now().Sub(entry.CreatedAt) >= c.ttl {
		c.removeLocked(key)
		return CacheEntry{}, false
	}
	return entry, true
}

// Set stores a response, always overwriting any existing entry.
func (c *ResponseCache) Set(query, contextText, response string, tokenCount int) {
	key := cacheKey(query, contextText)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = CacheEntry{
		Response:   response,
		CreatedAt:  c.now(),
		TokenCount: tokenCount,
	}
}

// FindSimilar looks for the cached key sharing the most words with
// query, requiring at least similarWordThreshold overlapping words.
// Words are lowercased and split on non-alphanumeric boundaries. Ties
// resolve to the earliest-inserted key. Used only as a degraded
// fallback; expiry is not checked here (the sweep handles it).
func (c *ResponseCache) FindSimilar(query string) (string, bool) {
	queryWords := wordSet(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	var bestKey string
	highest := 0
	for _, key := range c.order {
		overlap := overlapCount(queryWords, wordSet(key))
		if overlap > highest {
			highest = overlap
			bestKey = key
		}
	}

	if highest < similarWordThreshold {
		return "", false
	}
	return c.entries[bestKey].Response, true
}

// Len reports the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) >= c.ttl {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

// StartSweeper launches the periodic sweep goroutine. Stop shuts it
// down. Both are idempotent.
func (c *ResponseCache) StartSweeper() {
	c.startSw.Do(func() {
		go c.sweepLoop()
	})
}

// Stop terminates the sweep goroutine if it was started.
func (c *ResponseCache) Stop() {
	c.stopSw.Do(func() {
		close(c.done)
	})
}

func (c *ResponseCache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				c.logger.Debug("swept expired cache entries", "removed", removed)
			}
		}
	}
}

func (c *ResponseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// cacheKey builds the whitespace-stripped key. See the type comment for
// the collision trade-off this implies.
func cacheKey(query, contextText string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, query+":"+contextText)
}

func wordSet(text string) map[string]struct{} {
	// Underscore counts as a word character, so snake_case identifiers
	// stay whole.
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '_'
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
