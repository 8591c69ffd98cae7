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
	"sync"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// Producer turns an external event stream into work items. Producers only
// observe and hand off; they never execute side effects themselves.
type Producer interface {
	// Poll returns new work items observed since the last poll.
	Poll(ctx context.Context) ([]*model.WorkItem, error)
	// Source identifies the event stream this producer watches.
	Source() model.Source
}

// Planner turns an ingested work item into an ordered plan of steps. Planning
// is deterministic and side-effect free: the same item always yields the same
// plan.
type Planner interface {
	PlanWorkItem(ctx context.Context, item *model.WorkItem) (*model.Plan, error)
}

// StepExecutor performs the side effect of one plan step. Implementations
// classify their failures as transient or permanent through the faults
// package so the retry layer never has to guess.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, item *model.WorkItem, step model.PlanStep) error
}

// Notifier delivers fire-and-forget alerts to a human channel.
type Notifier interface {
	Notify(title, message, severity string)
}

// AuditSink accepts audit entries from components that do not own the full
// datasource, such as the supervisor.
type AuditSink interface {
	RecordAuditEntry(ctx context.Context, entry *model.AuditEntry) error
}

// ExecutorRegistry maps action kinds to their executors. Dispatch is by kind
// through this table; an unregistered kind is a permanent failure, not a
// silent skip.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[model.ActionKind]StepExecutor
}

func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[model.ActionKind]StepExecutor)}
}

// Register binds an executor to an action kind, replacing any previous
// binding.
func (r *ExecutorRegistry) Register(kind model.ActionKind, exec StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = exec
}

// Lookup resolves the executor for a kind.
func (r *ExecutorRegistry) Lookup(kind model.ActionKind) (StepExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[kind]
	if !ok {
		return nil, faults.Newf(faults.Permanent, "no executor registered for action kind %s", kind)
	}
	return exec, nil
}
