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

package waypoint

import (
	"context"
	"embed"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/internal/cache"
	"github.com/waypointhq/waypoint/internal/notification"
	redis_db "github.com/waypointhq/waypoint/internal/redis-db"
	"github.com/waypointhq/waypoint/internal/stage"
)

var tracer = otel.Tracer("waypoint")

// Waypoint is the workflow engine: sessions moving through stages, the subscription
// ledger that charges for finished workflows, and the roadmap board of each session.
type Waypoint struct {
	datasource database.IDataSource
	registry   *stage.Registry
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	boardTTL   time.Duration
	lockTTL    time.Duration
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewWaypoint builds the engine on top of db. It fetches the configuration, connects to
// Redis and prepares the webhook queue and the board cache.
func NewWaypoint(db database.IDataSource) (*Waypoint, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue, err := NewQueue(configuration)
	if err != nil {
		return nil, err
	}

	w := &Waypoint{
		datasource: db,
		registry:   stage.Default(),
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      newBoardCache(configuration, redisClient.Client()),
		boardTTL:   time.Duration(configuration.Cache.RoadmapTTLSec) * time.Second,
		lockTTL:    time.Duration(configuration.Lock.WorkflowTimeoutSec) * time.Second,
	}
	if w.lockTTL <= 0 {
		w.lockTTL = 30 * time.Second
	}
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return w.queue.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
	})
	return w, nil
}

func newBoardCache(cnf *config.Configuration, client redis.UniversalClient) cache.Cache {
	if cnf.Cache.Disabled {
		return cache.Noop{}
	}
	var opts []cache.Option
	if cnf.Cache.LocalTTLSec > 0 {
		opts = append(opts, cache.WithLocalCache(1000, time.Duration(cnf.Cache.LocalTTLSec)*time.Second))
	}
	return cache.NewCache(client, opts...)
}

// Registry returns the stage registry the engine normalizes against.
func (w *Waypoint) Registry() *stage.Registry {
	return w.registry
}

// Close releases the queue clients.
func (w *Waypoint) Close() error {
	return w.queue.Close()
}

// notifyEvent publishes an event in the background. Failures are reported, never
// returned, since the caller's write has already committed.
func (w *Waypoint) notifyEvent(event string, payload interface{}) {
	go func() {
		err := w.queue.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
