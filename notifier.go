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

package steward

import "github.com/stewardhq/steward/internal/notification"

// notifyFunc adapts the notification package to the Notifier contract.
type notifyFunc struct{}

func (notifyFunc) Notify(title, message, severity string) {
	notification.Notify(title, message, severity)
}

// DefaultNotifier returns the Notifier backed by the configured Slack and
// webhook channels.
func DefaultNotifier() Notifier {
	return notifyFunc{}
}
