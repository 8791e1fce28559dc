/*
Copyright 2024 Waypoint Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache stores msgpack-encoded values under string keys.
type Cache interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the value stored under key into data. It reports false on a miss and
	// leaves data untouched.
	Get(ctx context.Context, key string, data interface{}) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// RedisCache is a Cache backed by Redis with an optional in-process TinyLFU layer.
type RedisCache struct {
	cache *cache.Cache
}

// Option configures a RedisCache.
type Option func(*cache.Options)

// WithLocalCache keeps up to size entries in process for ttl. Other instances do not
// see local invalidations, so ttl bounds how stale a read can be across instances.
func WithLocalCache(size int, ttl time.Duration) Option {
	return func(o *cache.Options) {
		if size > 0 && ttl > 0 {
			o.LocalCache = cache.NewTinyLFU(size, ttl)
		}
	}
}

func NewCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	o := &cache.Options{Redis: client}
	for _, opt := range opts {
		opt(o)
	}
	return &RedisCache{cache: cache.New(o)}
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) (bool, error) {
	err := r.cache.Get(ctx, key, data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Noop never stores anything. It is used when caching is disabled.
type Noop struct{}

func (Noop) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (Noop) Get(context.Context, string, interface{}) (bool, error) { return false, nil }

func (Noop) Delete(context.Context, string) error { return nil }
