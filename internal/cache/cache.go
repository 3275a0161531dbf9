package cache

import (
	"sync"

	"github.com/owltrackers/extension/pkg/core"
)

// SnapshotCache keeps the token snapshot of the previous refresh pass so
// the next incremental pass can be diffed against it.
type SnapshotCache struct {
	m      sync.Mutex
	tokens []core.Token
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{}
}

// Replace stores a copy of tokens as the latest snapshot
func (c *SnapshotCache) Replace(tokens []core.Token) {
	c.m.Lock()
	defer c.m.Unlock()
	c.tokens = append([]core.Token(nil), tokens...)
}

// Swap stores tokens and returns the snapshot it replaced
func (c *SnapshotCache) Swap(tokens []core.Token) []core.Token {
	c.m.Lock()
	defer c.m.Unlock()
	prev := c.tokens
	c.tokens = append([]core.Token(nil), tokens...)
	return prev
}

// Len returns the number of tokens in the latest snapshot
func (c *SnapshotCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.tokens)
}

func (c *SnapshotCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.tokens = nil
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
