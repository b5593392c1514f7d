package cache

import (
	"context"
	"time"
)

// LayeredCache is a two-level cache: a process-local L1 in front of a shared L2.
// Locks always go to L2 so they hold across processes.
type LayeredCache struct {
	l1    Service
	l2    Service
	l1TTL time.Duration
}

// NewLayeredCache creates a layered cache.
func NewLayeredCache(l1, l2 Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{L1TTL: time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{l1: l1, l2: l2, l1TTL: cfg.L1TTL}
}

func (lc *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || (lc.l1TTL > 0 && ttl > lc.l1TTL) {
		return lc.l1TTL
	}
	return ttl
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	// write-through: shared layer first
	if err := lc.l2.Set(ctx, key, data, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.localTTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if err := lc.l1.Get(ctx, key, &data); err == nil {
		return decode(data, dest)
	}
	if err := lc.l2.Get(ctx, key, &data); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, data, lc.l1TTL)
	return decode(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	_ = lc.l1.DeleteByPrefix(ctx, prefix)
	return lc.l2.DeleteByPrefix(ctx, prefix)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close closes both layers.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
