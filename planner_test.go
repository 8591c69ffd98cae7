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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

func TestPayloadPlannerDecodesSteps(t *testing.T) {
	item := &model.WorkItem{
		WorkItemID: "wki_a",
		Payload:    []byte(`{"steps": [{"service": "mail", "action_kind": "send_message", "target": "a@b.c"}]}`),
	}

	plan, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "wki_a", plan.WorkItemID)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, model.ActionSendMessage, plan.Steps[0].Kind)
	assert.False(t, plan.RequiresApproval())
}

func TestPayloadPlannerForcesApprovalForNeverRetryKinds(t *testing.T) {
	// The payload claims no approval is needed; the planner overrules it for
	// every irreversible kind
	for _, kind := range []model.ActionKind{model.ActionPayment, model.ActionFinancialPost, model.ActionDestructiveDelete} {
		item := &model.WorkItem{
			WorkItemID: "wki_b",
			Payload:    []byte(`{"steps": [{"service": "accounting", "action_kind": "` + string(kind) + `", "requires_approval": false}]}`),
		}

		plan, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
		require.NoError(t, err)
		assert.True(t, plan.Steps[0].RequiresApproval, "kind %s must be gated", kind)
	}
}

func TestPayloadPlannerRejectsUnknownKind(t *testing.T) {
	item := &model.WorkItem{
		WorkItemID: "wki_c",
		Payload:    []byte(`{"steps": [{"service": "mail", "action_kind": "launch_rocket"}]}`),
	}

	_, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
	require.Error(t, err)
	assert.Equal(t, faults.Permanent, faults.KindOf(err))
}

func TestPayloadPlannerRejectsEmptyAndMalformedPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":   `{broken`,
		"no steps":   `{"steps": []}`,
		"wrong type": `{"steps": "nope"}`,
	} {
		item := &model.WorkItem{WorkItemID: "wki_d", Payload: []byte(payload)}
		_, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
		require.Error(t, err, name)
		assert.Equal(t, faults.Permanent, faults.KindOf(err), name)
	}
}

func TestPayloadPlannerIsDeterministic(t *testing.T) {
	item := &model.WorkItem{
		WorkItemID: "wki_e",
		Payload: []byte(`{"steps": [
			{"service": "mail", "action_kind": "send_message"},
			{"service": "accounting", "action_kind": "create_invoice"}
		]}`),
	}

	first, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
	require.NoError(t, err)
	second, err := PayloadPlanner{}.PlanWorkItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
