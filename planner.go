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
	"encoding/json"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// PayloadPlanner reads the plan straight from the work item payload. Planning
// stays deterministic and side-effect free: the same payload always yields
// the same plan, and never-retry action kinds are forced through the approval
// gate no matter what the payload says.
type PayloadPlanner struct{}

type payloadPlan struct {
	Steps []model.PlanStep `json:"steps"`
}

// PlanWorkItem decodes the payload's steps, validates every action kind, and
// marks never-retry kinds as requiring approval.
func (PayloadPlanner) PlanWorkItem(ctx context.Context, item *model.WorkItem) (*model.Plan, error) {
	var decoded payloadPlan
	if err := json.Unmarshal(item.Payload, &decoded); err != nil {
		return nil, faults.Wrap(faults.Permanent, "work item payload is not a valid plan", err)
	}
	if len(decoded.Steps) == 0 {
		return nil, faults.Newf(faults.Permanent, "work item %s payload has no steps", item.WorkItemID)
	}

	steps := make([]model.PlanStep, 0, len(decoded.Steps))
	for _, step := range decoded.Steps {
		if !step.Kind.Valid() {
			return nil, faults.Newf(faults.Permanent, "unknown action kind %q in work item %s", step.Kind, item.WorkItemID)
		}
		if step.Kind.NeverRetry() {
			step.RequiresApproval = true
		}
		steps = append(steps, step)
	}

	return &model.Plan{WorkItemID: item.WorkItemID, Steps: steps}, nil
}
