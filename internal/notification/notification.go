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

package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/internal/request"
)

// WebhookSender publishes an event to the configured webhook endpoint. It is registered
// by the service at startup so this package does not depend on the queue.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender replaces the sender used to forward system errors.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

func slackMessage(err error, at time.Time) map[string]interface{} {
	field := func(text string) map[string]interface{} {
		return map[string]interface{}{
			"type":   "section",
			"fields": []map[string]string{{"type": "mrkdwn", "text": text}},
		}
	}
	return map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": "Error From Waypoint 🐞", "emoji": true},
			},
			field(fmt.Sprintf("*Error:*\n%v", err)),
			field(fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))),
		},
	}
}

// SlackNotification posts err to the configured Slack incoming webhook.
func SlackNotification(err error) {
	conf, cErr := config.Fetch()
	if cErr != nil {
		logrus.Error(cErr)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
	defer cancel()
	if _, pErr := request.PostJSON(ctx, conf.Notification.Slack.WebhookUrl, nil, slackMessage(err, time.Now()), nil); pErr != nil {
		logrus.WithError(pErr).Warn("slack notification failed")
	}
}

// NotifyError logs systemError and reports it to Slack and to the webhook sender when
// they are configured. It does not block the caller.
func NotifyError(systemError error) {
	go notify(systemError)
}

func notify(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl != "" {
		SlackNotification(systemError)
	}

	if sender := currentSender(); sender != nil {
		payload := map[string]interface{}{
			"error":     systemError.Error(),
			"timestamp": time.Now().UTC(),
		}
		if err := sender("system.error", payload); err != nil {
			logrus.WithError(err).Warn("system error webhook failed")
		}
	}
}
