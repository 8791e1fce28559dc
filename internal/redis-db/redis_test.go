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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		tls      bool
		wantErr  bool
	}{
		{name: "docker style", url: "redis:6379", addr: "redis:6379"},
		{name: "url with password", url: "redis://:password123@localhost:6379", addr: "localhost:6379", password: "password123"},
		{name: "password without colon", url: "redis://secret@localhost:6379", addr: "localhost:6379", password: "secret"},
		{name: "tls url", url: "rediss://:pw@cache.example.com:6380", addr: "cache.example.com:6380", password: "pw", tls: true},
		{name: "bare azure host", url: "myinstance.redis.cache.windows.net:6380", addr: "myinstance.redis.cache.windows.net:6380"},
		{name: "empty", url: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedisURL(tt.url, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got.Addr)
			assert.Equal(t, tt.password, got.Password)
			assert.Equal(t, tt.tls, got.TLSConfig != nil)
		})
	}
}

func TestParseRedisURL_SkipTLSVerify(t *testing.T) {
	got, err := ParseRedisURL("rediss://:pw@cache.example.com:6380", true)
	require.NoError(t, err)
	require.NotNil(t, got.TLSConfig)
	assert.True(t, got.TLSConfig.InsecureSkipVerify)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	_, err := NewRedisClient(nil, false)
	assert.Error(t, err)

	client, err := NewRedisClient([]string{mr.Addr()}, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Client().Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient([]string{addr}, false)
	assert.Error(t, err)
}
