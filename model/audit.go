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

package model

import "time"

// Audit result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultQueued  = "queued"
	ResultBlocked = "blocked"
)

// AuditEntry is an immutable record of one attempted action and its outcome.
// Entries are appended to a day-partitioned log and never rewritten.
type AuditEntry struct {
	ID             int64             `json:"-"`
	Timestamp      time.Time         `json:"timestamp"`
	ActionType     string            `json:"action_type"`
	Actor          string            `json:"actor"`
	Domain         string            `json:"domain,omitempty"`
	Target         string            `json:"target,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
	ApprovalStatus string            `json:"approval_status,omitempty"`
	ApprovedBy     string            `json:"approved_by,omitempty"`
	Result         string            `json:"result"`
	Error          string            `json:"error,omitempty"`
}

// AuditFilter narrows an audit query. Zero values match everything.
type AuditFilter struct {
	ActionType string
	Domain     string
	Actor      string
	Result     string
	Limit      int
}

// AuditSummary aggregates one day of audit entries for reporting.
type AuditSummary struct {
	Date         string         `json:"date"`
	TotalActions int            `json:"total_actions"`
	ByResult     map[string]int `json:"by_result"`
	ByDomain     map[string]int `json:"by_domain"`
	ByActionType map[string]int `json:"by_action_type"`
	Failures     []AuditFailure `json:"failures"`
}

// AuditFailure is one failed action surfaced in a daily summary.
type AuditFailure struct {
	ActionType string    `json:"action_type"`
	Domain     string    `json:"domain"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}
