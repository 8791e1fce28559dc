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
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/waypointhq/waypoint/config"
	redis_db "github.com/waypointhq/waypoint/internal/redis-db"
)

// Queue carries background work to the workers. Today that is webhook delivery.
type Queue struct {
	Client       *asynq.Client
	Inspector    *asynq.Inspector
	webhookQueue string
	maxRetry     int
}

// RedisClientOpt turns the configured Redis address into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, errors.Wrap(err, "parse redis url")
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue initializes the asynq client and inspector.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}

	webhookQueue := conf.Queue.WebhookQueue
	if webhookQueue == "" {
		webhookQueue = config.DEFAULT_WEBHOOK_QUEUE
	}
	return &Queue{
		Client:       asynq.NewClient(queueOptions),
		Inspector:    asynq.NewInspector(queueOptions),
		webhookQueue: webhookQueue,
		maxRetry:     conf.Queue.MaxRetry,
	}, nil
}

// WebhookQueue is the asynq queue the workers drain for webhook deliveries.
func (q *Queue) WebhookQueue() string {
	return q.webhookQueue
}

// SendWebhook enqueues a webhook delivery. Nothing is enqueued when no webhook url is
// configured.
func (q *Queue) SendWebhook(ctx context.Context, newWebhook NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Enqueue Webhook")
	defer span.End()

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return errors.Wrapf(err, "marshal webhook %s", newWebhook.Event)
	}

	taskOptions := []asynq.Option{asynq.Queue(q.webhookQueue)}
	if q.maxRetry > 0 {
		taskOptions = append(taskOptions, asynq.MaxRetry(q.maxRetry))
	}
	task := asynq.NewTask(q.webhookQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return errors.Wrapf(err, "enqueue webhook %s", newWebhook.Event)
	}
	logrus.WithFields(logrus.Fields{"event": newWebhook.Event, "task_id": info.ID}).Debug("webhook enqueued")
	return nil
}

// Close releases the client and the inspector.
func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}
