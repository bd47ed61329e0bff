// Package cache holds bounded caches for enrichment lookups: capacity and TTL
// limits with explicit eviction.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMiss is returned by Get when no live entry exists.
var ErrMiss = errors.New("cache miss")

// Cache is the capability the enrichment service needs from a cache.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, value T) error
	Evict(ctx context.Context, key string) error
	Purge(ctx context.Context) error
}

// LRU is an in-process cache bounded by size, entries expire after ttl.
type LRU[T any] struct {
	lru *expirable.LRU[string, T]
}

// NewLRU creates an in-process cache holding at most size entries.
func NewLRU[T any](size int, ttl time.Duration) *LRU[T] {
	if size <= 0 {
		size = 1
	}
	return &LRU[T]{lru: expirable.NewLRU[string, T](size, nil, ttl)}
}

func (c *LRU[T]) Get(_ context.Context, key string) (T, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		var zero T
		return zero, ErrMiss
	}
	return v, nil
}

func (c *LRU[T]) Set(_ context.Context, key string, value T) error {
	c.lru.Add(key, value)
	return nil
}

func (c *LRU[T]) Evict(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *LRU[T]) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of entries, including ones not yet reaped.
func (c *LRU[T]) Len() int {
	return c.lru.Len()
}
