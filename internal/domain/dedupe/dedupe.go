// Package dedupe tracks transaction ids that are being or have been rated so
// concurrent submissions for the same transaction cannot both proceed.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Claims records claimed transaction ids.
type Claims interface {
	// Claim atomically checks whether id is already claimed and claims it if not.
	// Returns true if id was already claimed.
	Claim(ctx context.Context, id string) bool

	// Release drops a claim so the transaction can be submitted again.
	// Only used when a claimed submission failed before it was persisted.
	Release(ctx context.Context, id string)

	Size() int64
}

// inMemoryClaims keeps claims in a map indexed into an insertion-ordered list.
// Bounded mode (maxSize > 0) evicts the oldest claim when full.
// Unbounded mode (maxSize <= 0) never evicts.
type inMemoryClaims struct {
	mu      sync.Mutex
	claimed map[string]*list.Element
	order   *list.List // front is the newest claim
	maxSize int
	size    atomic.Int64
}

// NewInMemoryClaims creates a claim cache with configuration options.
func NewInMemoryClaims(opts ...Option) Claims {
	c := &inMemoryClaims{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.claimed = make(map[string]*list.Element)
	c.order = list.New()
	return c
}

func (c *inMemoryClaims) Claim(_ context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.claimed[id]; exists {
		return true
	}
	if c.maxSize > 0 && len(c.claimed) >= c.maxSize {
		c.evictOldest()
	}
	c.claimed[id] = c.order.PushFront(id)
	c.size.Add(1)
	return false
}

func (c *inMemoryClaims) Release(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.claimed[id]; exists {
		c.order.Remove(el)
		delete(c.claimed, id)
		c.size.Add(-1)
	}
}

// evictOldest must be called with c.mu held.
func (c *inMemoryClaims) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.claimed, el.Value.(string)) //nolint:forcetypeassert // list only holds ids
	c.size.Add(-1)
}

func (c *inMemoryClaims) Size() int64 {
	return c.size.Load()
}
