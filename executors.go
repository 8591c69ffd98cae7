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
	"net/http"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/internal/request"
	"github.com/stewardhq/steward/model"
)

// HTTPExecutor performs plan steps by POSTing them to the configured dispatch
// endpoint. The receiver does the real side effect and answers with a status
// code; 5xx and transport errors are transient, 4xx permanent.
type HTTPExecutor struct {
	Url     string
	Headers map[string]string
}

// NewHTTPExecutor returns an executor for the configured dispatch endpoint.
func NewHTTPExecutor(conf *config.Configuration) *HTTPExecutor {
	return &HTTPExecutor{
		Url:     conf.Dispatch.Url,
		Headers: conf.Dispatch.Headers,
	}
}

type dispatchPayload struct {
	WorkItemID string            `json:"work_item_id"`
	Source     model.Source      `json:"source"`
	Service    string            `json:"service"`
	Kind       model.ActionKind  `json:"action_kind"`
	Target     string            `json:"target,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// ExecuteStep dispatches one step. Errors come back typed so the retry layer
// knows what to do with them.
func (e *HTTPExecutor) ExecuteStep(ctx context.Context, item *model.WorkItem, step model.PlanStep) error {
	payload, err := request.ToJsonReq(&dispatchPayload{
		WorkItemID: item.WorkItemID,
		Source:     item.Source,
		Service:    step.Service,
		Kind:       step.Kind,
		Target:     step.Target,
		Params:     step.Params,
	})
	if err != nil {
		return faults.Wrap(faults.Permanent, "failed to encode dispatch payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.Url, payload)
	if err != nil {
		return faults.Wrap(faults.Permanent, "failed to build dispatch request", err)
	}
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return faults.Wrap(faults.Permanent, "dispatch rejected", err)
		}
		return faults.Wrap(faults.Transient, "dispatch failed", err)
	}
	if resp.StatusCode >= 500 {
		return faults.Newf(faults.Transient, "dispatch endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return faults.Newf(faults.Permanent, "dispatch endpoint rejected step with %d", resp.StatusCode)
	}
	return nil
}
