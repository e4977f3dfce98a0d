package rules

import (
	"context"
	"sync"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

// Loader fetches a user's full rule set (system rules + user rules).
type Loader func(ctx context.Context, userID string) ([]repository.CategoryRule, error)

// Cache memoizes rule sets per user. There is no TTL: correctness depends on
// Invalidate being called on every rule mutation before the next read.
type Cache struct {
	mu      sync.RWMutex
	load    Loader
	entries map[string][]repository.CategoryRule
}

func NewCache(load Loader) *Cache {
	return &Cache{load: load, entries: make(map[string][]repository.CategoryRule)}
}

// Get returns the cached rule set for userID, loading it on first use.
func (c *Cache) Get(ctx context.Context, userID string) ([]repository.CategoryRule, error) {
	c.mu.RLock()
	cached, ok := c.entries[userID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ruleset, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[userID] = ruleset
	c.mu.Unlock()
	return ruleset, nil
}

// Invalidate drops the user's cached entry.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
