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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNeverRetrySafetySet(t *testing.T) {
	for _, kind := range []ActionKind{ActionPayment, ActionFinancialPost, ActionDestructiveDelete} {
		assert.True(t, kind.NeverRetry(), "%s is irreversible", kind)
	}
	for _, kind := range []ActionKind{ActionSendMessage, ActionPostContent, ActionCreateInvoice, ActionGeneral} {
		assert.False(t, kind.NeverRetry(), "%s may be replayed", kind)
	}
}

func TestActionKindValid(t *testing.T) {
	for _, kind := range AllActionKinds() {
		assert.True(t, kind.Valid())
	}
	assert.False(t, ActionKind("launch_rocket").Valid())
	assert.False(t, ActionKind("").Valid())
}

func TestApprovalRequestExpired(t *testing.T) {
	now := time.Now()
	req := &ApprovalRequest{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, req.Expired(now))
	assert.True(t, req.Expired(now.Add(2*time.Hour)))
	assert.False(t, req.Expired(req.ExpiresAt), "the deadline itself is not yet expired")
}

func TestApprovalRequestRequiresManualOnly(t *testing.T) {
	assert.True(t, (&ApprovalRequest{Kind: ActionPayment}).RequiresManualOnly())
	assert.False(t, (&ApprovalRequest{Kind: ActionSendMessage}).RequiresManualOnly())
}

func TestPlanRequiresApproval(t *testing.T) {
	plain := &Plan{Steps: []PlanStep{
		{Service: "mail", Kind: ActionSendMessage},
		{Service: "social", Kind: ActionPostContent},
	}}
	assert.False(t, plain.RequiresApproval())

	gated := &Plan{Steps: []PlanStep{
		{Service: "mail", Kind: ActionSendMessage},
		{Service: "accounting", Kind: ActionPayment, RequiresApproval: true},
	}}
	assert.True(t, gated.RequiresApproval())
}
