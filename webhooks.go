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
	"github.com/waypointhq/waypoint/internal/request"
)

const (
	EventSessionCreated        = "session.created"
	EventSessionStageCompleted = "session.stage_completed"
	EventWorkflowCompleted     = "workflow.completed"
	EventCustomerCreated       = "customer.created"
	EventCustomerQuotaReached  = "customer.quota_exhausted"
	EventSubscriptionChanged   = "customer.subscription_changed"
	EventRoadmapCreated        = "roadmap.created"
	EventRoadmapReordered      = "roadmap.reordered"
)

// NewWebhook is the body delivered to the webhook endpoint.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// processHTTP posts the webhook to the configured url. A non-2xx answer is an error so
// asynq retries the delivery.
func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, request.DefaultTimeout)
	defer cancel()

	var response map[string]interface{}
	_, err = request.PostJSON(ctx, conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, data, &response)
	if err != nil {
		return errors.Wrapf(err, "deliver webhook %s", data.Event)
	}
	logrus.WithFields(logrus.Fields{"event": data.Event, "response": response}).Info("webhook notification sent")
	return nil
}

// ProcessWebhook is the asynq handler for webhook deliveries.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("malformed webhook task")
		return errors.Wrap(asynq.SkipRetry, err.Error())
	}
	logrus.WithField("event", payload.Event).Debug("processing webhook")
	return processHTTP(ctx, payload)
}
