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

package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/waypointhq/waypoint/config"
)

// SecretKeyHeader carries the server secret when server.secure is on.
const SecretKeyHeader = "X-Waypoint-Key"

const defaultLimiterTTL = 3 * time.Hour

// newLimiter builds the per-client limiter, or returns nil when rate limiting is off.
// Both the rate and the burst must be set to turn it on.
func newLimiter(rl config.RateLimitConfig) *limiter.Limiter {
	if rl.RequestsPerSecond == nil || rl.Burst == nil {
		return nil
	}
	ttl := defaultLimiterTTL
	if rl.CleanupIntervalSec != nil && *rl.CleanupIntervalSec > 0 {
		ttl = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*rl.RequestsPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lmt.SetBurst(*rl.Burst)
	return lmt
}

// RateLimitMiddleware throttles each client with tollbooth. Throttled requests get a
// 429 in the same shape as the other API errors.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	lmt := newLimiter(conf.RateLimit)
	return func(c *gin.Context) {
		if lmt == nil {
			c.Next()
			return
		}
		if limited := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); limited != nil {
			c.AbortWithStatusJSON(limited.StatusCode, gin.H{"error": "too many requests, slow down", "code": "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware admits only requests whose X-Waypoint-Key matches secret. An
// empty secret means the server was started in secure mode without one, and every
// request is refused.
func SecretKeyAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server.secret_key must be set when server.secure is on"})
			return
		}
		switch supplied := c.GetHeader(SecretKeyHeader); {
		case supplied == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": SecretKeyHeader + " header is required"})
		case subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) != 1:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": SecretKeyHeader + " does not match"})
		default:
			c.Next()
		}
	}
}
