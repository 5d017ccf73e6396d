package dsl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tgdsl/runtime/internal/storage"
)

// Cache holds one compiled Spec per bot_id, swapped atomically on Reload so
// an in-flight handler always observes a complete, non-torn compiled spec.
// A cache miss compiles synchronously from the store's highest published
// version and installs the result.
type Cache struct {
	specs storage.SpecStore

	mu      sync.Mutex
	entries map[string]*atomic.Pointer[Compiled]
}

func NewCache(specs storage.SpecStore) *Cache {
	return &Cache{
		specs:   specs,
		entries: make(map[string]*atomic.Pointer[Compiled]),
	}
}

// Get returns the compiled spec for botID, compiling and caching it on
// first use.
func (c *Cache) Get(ctx context.Context, botID string) (*Compiled, error) {
	if slot := c.load(botID); slot != nil {
		return slot, nil
	}
	return c.Reload(ctx, botID)
}

func (c *Cache) load(botID string) *Compiled {
	c.mu.Lock()
	ptr, ok := c.entries[botID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return ptr.Load()
}

// Reload recompiles botID from the store's highest published version and
// atomically swaps the cached reference. Two sequential reloads at the same
// published version produce an identical compiled form (idempotent, §8).
func (c *Cache) Reload(ctx context.Context, botID string) (*Compiled, error) {
	spec, err := c.specs.Latest(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("dsl: load spec for %s: %w", botID, err)
	}

	doc, err := ParseDoc(spec.SpecJSON)
	if err != nil {
		return nil, err
	}
	compiled, err := Compile(botID, spec.Version, doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	ptr, ok := c.entries[botID]
	if !ok {
		ptr = &atomic.Pointer[Compiled]{}
		c.entries[botID] = ptr
	}
	c.mu.Unlock()
	ptr.Store(compiled)
	return compiled, nil
}

// Invalidate drops the cached entry for botID without recompiling; the next
// Get recompiles synchronously.
func (c *Cache) Invalidate(botID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, botID)
}
