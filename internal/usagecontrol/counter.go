package usagecontrol

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// UsageCounter tracks how often an artifact was released under an agreement
type UsageCounter interface {
	// Count returns the number of completed accesses
	Count(ctx context.Context, agreementID, artifactID string) (int64, error)
	// Increment records one access and returns the new count
	Increment(ctx context.Context, agreementID, artifactID string) (int64, error)
}

// RedisCounter keeps usage counts in Redis so that every connector replica
// sees the same numbers.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounter creates a counter on top of client
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client, prefix: "usage:"}
}

func (c *RedisCounter) key(agreementID, artifactID string) string {
	return c.prefix + agreementID + ":" + artifactID
}

// Count implements UsageCounter
func (c *RedisCounter) Count(ctx context.Context, agreementID, artifactID string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(agreementID, artifactID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get usage count: %w", err)
	}
	return n, nil
}

// Increment implements UsageCounter
func (c *RedisCounter) Increment(ctx context.Context, agreementID, artifactID string) (int64, error) {
	n, err := c.client.Incr(ctx, c.key(agreementID, artifactID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr usage count: %w", err)
	}
	return n, nil
}

// MemoryCounter is a process-local UsageCounter
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter creates an empty in-memory counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

// Count implements UsageCounter
func (c *MemoryCounter) Count(_ context.Context, agreementID, artifactID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[agreementID+"\x00"+artifactID], nil
}

// Increment implements UsageCounter
func (c *MemoryCounter) Increment(_ context.Context, agreementID, artifactID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := agreementID + "\x00" + artifactID
	c.counts[k]++
	return c.counts[k], nil
}
