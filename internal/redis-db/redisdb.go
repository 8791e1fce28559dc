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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client shared by the lock, the board cache and the queue.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// ParseRedisURL accepts a bare host:port, a redis:// or rediss:// URL, or a
// password@host form and returns client options. Managed Azure hosts get TLS.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address is empty")
	}

	if !strings.Contains(rawURL, "//") && !strings.Contains(rawURL, "@") {
		return &redis.Options{Addr: rawURL}, nil
	}

	// redis://secret@host has no user separator; redis.ParseURL needs ":secret".
	if strings.HasPrefix(rawURL, "redis://") {
		rest := strings.TrimPrefix(rawURL, "redis://")
		if auth, host, ok := strings.Cut(rest, "@"); ok && !strings.Contains(auth, ":") {
			rawURL = fmt.Sprintf("redis://:%s@%s", auth, host)
		}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		host := rawURL
		var password string
		if auth, h, ok := strings.Cut(rawURL, "@"); ok {
			password = strings.TrimPrefix(auth, "redis://")
			host = h
		}
		opts = &redis.Options{Addr: host, Password: password}
		if strings.Contains(host, "redis.cache.windows.net") {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig.InsecureSkipVerify = true
	}
	return opts, nil
}

// NewRedisClient connects to a single instance, or to a cluster when more than one
// address is given, and pings it before returning.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		cluster := &redis.UniversalOptions{}
		for _, addr := range addresses {
			opts, err := ParseRedisURL(addr, skipTLSVerify)
			if err != nil {
				return nil, err
			}
			cluster.Addrs = append(cluster.Addrs, opts.Addr)
			if cluster.Password == "" {
				cluster.Password = opts.Password
			}
			if opts.TLSConfig != nil && cluster.TLSConfig == nil {
				cluster.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: skipTLSVerify}
			}
		}
		client = redis.NewUniversalClient(cluster)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{addresses: addresses, client: client}, nil
}

// Client returns the underlying universal client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}
