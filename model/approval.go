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

// ActionKind is the closed set of side-effecting action types. Dispatch is by
// kind through a lookup table, never by free-form strings.
type ActionKind string

const (
	ActionSendMessage       ActionKind = "send_message"
	ActionPostContent       ActionKind = "post_content"
	ActionCreateInvoice     ActionKind = "create_invoice"
	ActionPayment           ActionKind = "payment"
	ActionFinancialPost     ActionKind = "financial_post"
	ActionDestructiveDelete ActionKind = "destructive_delete"
	ActionGeneral           ActionKind = "general"
)

// neverRetryKinds is the safety set: irreversible actions that must never be
// queued for automatic replay after an outage. Silent replay of a financial
// action is the highest-risk failure mode in the system, so membership here is
// a hard invariant, not a policy default.
var neverRetryKinds = map[ActionKind]bool{
	ActionPayment:           true,
	ActionFinancialPost:     true,
	ActionDestructiveDelete: true,
}

// NeverRetry reports whether the kind belongs to the never-auto-retry safety
// set.
func (k ActionKind) NeverRetry() bool {
	return neverRetryKinds[k]
}

// AllActionKinds returns every known action kind.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionSendMessage, ActionPostContent, ActionCreateInvoice,
		ActionPayment, ActionFinancialPost, ActionDestructiveDelete, ActionGeneral,
	}
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionSendMessage, ActionPostContent, ActionCreateInvoice,
		ActionPayment, ActionFinancialPost, ActionDestructiveDelete, ActionGeneral:
		return true
	}
	return false
}

// Decision is the resolution state of an approval request.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionExpired  Decision = "expired"
)

// ApprovalRequest is the human-gated decision point blocking a side effect.
// A work item has exactly one active (pending) request at a time.
//
// A request with Manual set is a standalone manual-approval request: it was
// created because a never-retry action hit an unavailable service, and its
// lifecycle is independent of any work item transition.
type ApprovalRequest struct {
	ID         int64             `json:"-"`
	ApprovalID string            `json:"approval_id"`
	WorkItemID string            `json:"work_item_id,omitempty"`
	Kind       ActionKind        `json:"action_kind"`
	Title      string            `json:"title"`
	Details    map[string]string `json:"details,omitempty"`
	Decision   Decision          `json:"decision"`
	Approver   string            `json:"approver,omitempty"`
	Manual     bool              `json:"manual"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
}

// RequiresManualOnly reports whether the request's action kind is excluded
// from automatic retry and queue-and-replay.
func (a *ApprovalRequest) RequiresManualOnly() bool {
	return a.Kind.NeverRetry()
}

// Expired reports whether the request has passed its expiry at the given time.
func (a *ApprovalRequest) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Plan is the ordered list of steps produced for a work item. Planning is
// deterministic and side-effect free.
type Plan struct {
	WorkItemID string     `json:"work_item_id"`
	Steps      []PlanStep `json:"steps"`
}

// PlanStep is a single step of a plan. Steps tagged RequiresApproval block on
// a human decision before their side effect runs.
type PlanStep struct {
	Service          string            `json:"service"`
	Kind             ActionKind        `json:"action_kind"`
	Target           string            `json:"target,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
}

// RequiresApproval reports whether any step of the plan needs a human
// decision.
func (p *Plan) RequiresApproval() bool {
	for _, s := range p.Steps {
		if s.RequiresApproval {
			return true
		}
	}
	return false
}
