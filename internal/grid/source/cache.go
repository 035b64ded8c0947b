package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cached serves pages from Redis and collapses concurrent identical fetches
// into one backend call. Keys carry a per-resource version; Bump moves the
// version so every cached page of the resource goes stale at once.
type Cached[R any] struct {
	next   Source[R]
	client *redis.Client
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// NewCached wraps next. A nil client disables caching but keeps the
// request de-duplication.
func NewCached[R any](next Source[R], client *redis.Client, prefix string, ttl time.Duration) *Cached[R] {
	if prefix == "" {
		prefix = "grid"
	}
	return &Cached[R]{next: next, client: client, ttl: ttl, prefix: prefix}
}

// FetchPage implements Source.
func (c *Cached[R]) FetchPage(ctx context.Context, d Descriptor) (Page[R], error) {
	key, err := c.key(ctx, d)
	if err != nil {
		return Page[R]{}, err
	}
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var page Page[R]
			if err := json.Unmarshal(raw, &page); err == nil {
				return page, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return Page[R]{}, fmt.Errorf("source: cache get: %w", err)
		}
	}

	// The flight is shared, so one caller cancelling must not fail the others.
	detached := context.WithoutCancel(ctx)
	result := c.group.DoChan(key, func() (interface{}, error) {
		page, err := c.next.FetchPage(detached, d)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			if raw, err := json.Marshal(page); err == nil {
				_ = c.client.Set(detached, key, raw, c.ttl).Err()
			}
		}
		return page, nil
	})
	select {
	case <-ctx.Done():
		return Page[R]{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Page[R]{}, res.Err
		}
		return res.Val.(Page[R]), nil
	}
}

// Bump invalidates every cached page of resource.
func (c *Cached[R]) Bump(ctx context.Context, resource string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey(resource)).Err()
}

func (c *Cached[R]) key(ctx context.Context, d Descriptor) (string, error) {
	if c.client == nil {
		return d.Key(), nil
	}
	ver, err := c.client.Get(ctx, c.versionKey(d.Resource)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("source: cache version: %w", err)
	}
	return fmt.Sprintf("%s:page:%d:%s", c.prefix, ver, d.Key()), nil
}

func (c *Cached[R]) versionKey(resource string) string {
	return c.prefix + ":version:" + resource
}
