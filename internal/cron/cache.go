package cron

import (
	"sync"
	"time"
)

// DefaultCacheSize bounds the number of parsed expressions and memoized
// occurrences a Cache keeps.
const DefaultCacheSize = 256

type parseResult struct {
	expr *Expression
	err  error
}

type lastKey struct {
	expr     string
	minute   int64
	loc      string
	lookback int
}

type lastResult struct {
	at time.Time
	ok bool
}

// Cache memoizes parsing and LastOccurrence lookups. Occurrences are keyed
// by the reference time truncated to the minute, so a caller evaluating
// once per tick pays for the backward scan once per minute at most.
// Safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	size int

	parsed      map[string]parseResult
	parsedOrder []string

	last      map[lastKey]lastResult
	lastOrder []lastKey
}

// NewCache creates a Cache holding up to size entries of each kind.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		size:   size,
		parsed: make(map[string]parseResult),
		last:   make(map[lastKey]lastResult),
	}
}

// Parse is Parse with memoization. Failures are cached too.
func (c *Cache) Parse(expression string) (*Expression, error) {
	c.mu.Lock()
	if r, ok := c.parsed[expression]; ok {
		c.mu.Unlock()
		return r.expr, r.err
	}
	c.mu.Unlock()

	expr, err := Parse(expression)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.parsed[expression]; !ok {
		if len(c.parsedOrder) >= c.size {
			oldest := c.parsedOrder[0]
			c.parsedOrder = c.parsedOrder[1:]
			delete(c.parsed, oldest)
		}
		c.parsed[expression] = parseResult{expr: expr, err: err}
		c.parsedOrder = append(c.parsedOrder, expression)
	}
	return expr, err
}

// Validate reports whether expression parses.
func (c *Cache) Validate(expression string) bool {
	_, err := c.Parse(expression)
	return err == nil
}

// LastOccurrence is LastOccurrence with memoization.
func (c *Cache) LastOccurrence(expression string, ref time.Time, lookback int) (time.Time, bool) {
	expr, err := c.Parse(expression)
	if err != nil {
		return time.Time{}, false
	}

	ref = ref.Truncate(time.Minute)
	key := lastKey{
		expr:     expression,
		minute:   ref.Unix() / 60,
		loc:      ref.Location().String(),
		lookback: lookback,
	}

	c.mu.Lock()
	if r, ok := c.last[key]; ok {
		c.mu.Unlock()
		return r.at, r.ok
	}
	c.mu.Unlock()

	at, ok := expr.Last(ref, lookback)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.last[key]; !exists {
		if len(c.lastOrder) >= c.size {
			oldest := c.lastOrder[0]
			c.lastOrder = c.lastOrder[1:]
			delete(c.last, oldest)
		}
		c.last[key] = lastResult{at: at, ok: ok}
		c.lastOrder = append(c.lastOrder, key)
	}
	return at, ok
}

// Len returns the number of parsed expressions currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.parsed)
}
