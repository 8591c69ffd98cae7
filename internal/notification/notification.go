/*
Copyright 2025 Steward Authors.

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

// Package notification is the fire-and-forget sink for approval requests,
// degradation escalations, and supervisor restart alerts. Delivery failures
// are logged and never block the caller.
package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/internal/request"
)

// Severity levels for notifications.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SlackNotification posts a titled message to the configured Slack webhook.
func SlackNotification(title, message, severity string) {
	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "%s",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Severity:*\n%s"
					},
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%s"
					}
				]
			},
			{
				"type": "section",
				"text": {
					"type": "mrkdwn",
					"text": "%s"
				}
			}
		]
	}`, title, severity, time.Now().Format(time.RFC822), message))

	payload, err := request.ToJsonReq(&data)
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		log.Println(err)
		return
	}

	var response map[string]interface{}
	if _, err := request.Call(req, &response); err != nil {
		log.Println(err)
	}
}

// WebhookNotification posts the notification to the configured generic
// webhook with its configured headers.
func WebhookNotification(title, message, severity string) {
	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	data := map[string]interface{}{
		"title":    title,
		"message":  message,
		"severity": severity,
		"time":     time.Now().Format(time.RFC3339),
	}
	payload, err := request.ToJsonReq(&data)
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println(err)
		return
	}
	for k, v := range conf.Notification.Webhook.Headers {
		req.Header.Set(k, v)
	}

	var response map[string]interface{}
	if _, err := request.Call(req, &response); err != nil {
		log.Println(err)
	}
}

// Notify sends a notification through every configured channel. It runs
// asynchronously so a slow or failing sink never blocks the control plane.
func Notify(title, message, severity string) {
	go func() {
		switch severity {
		case SeverityCritical:
			logrus.Errorf("NOTIFY [%s] %s: %s", severity, title, message)
		case SeverityWarning:
			logrus.Warnf("NOTIFY [%s] %s: %s", severity, title, message)
		default:
			logrus.Infof("NOTIFY [%s] %s: %s", severity, title, message)
		}

		conf, err := config.Fetch()
		if err != nil {
			log.Println(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(title, message, severity)
		}
		if conf.Notification.Webhook.Url != "" {
			WebhookNotification(title, message, severity)
		}
	}()
}

// NotifyError reports a system error through the notification channels.
func NotifyError(systemError error) {
	Notify("Error From Steward", systemError.Error(), SeverityCritical)
}
