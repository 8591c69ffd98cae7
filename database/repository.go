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

package database

import (
	"context"
	"time"

	"github.com/stewardhq/steward/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	workItem // Interface for work item lifecycle operations
	approval // Interface for approval request operations
	audit    // Interface for audit log operations
}

// workItem defines methods for handling work items.
type workItem interface {
	RecordWorkItem(ctx context.Context, item *model.WorkItem) (bool, error)                                    // Inserts a work item, returns false when the id already exists
	GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error)                                       // Retrieves a work item by ID
	UpdateWorkItemState(ctx context.Context, id string, from, to model.WorkItemState, at time.Time) error      // Moves a work item along one state machine edge
	IncrementWorkItemAttempts(ctx context.Context, id string) (int, error)                                     // Bumps the attempt counter, returns the new count
	GetWorkItemsByState(ctx context.Context, state model.WorkItemState, limit int) ([]*model.WorkItem, error)  // Retrieves work items in a given state
}

// approval defines methods for handling approval requests.
type approval interface {
	RecordApproval(ctx context.Context, req *model.ApprovalRequest) error                            // Records a new approval request
	GetApproval(ctx context.Context, id string) (*model.ApprovalRequest, error)                      // Retrieves an approval request by ID
	ResolveApproval(ctx context.Context, id string, decision model.Decision, approver string) error  // Resolves a pending request, fails if already resolved
	ExpireApproval(ctx context.Context, id string) error                                             // Expires a pending request, fails if already resolved
	GetPendingApprovals(ctx context.Context, before time.Time) ([]*model.ApprovalRequest, error)     // Retrieves pending requests whose expiry has passed
	GetPendingApprovalForWorkItem(ctx context.Context, workItemID string) (*model.ApprovalRequest, error) // Retrieves the active pending request for a work item
}

// audit defines methods for handling the append-only audit log.
type audit interface {
	RecordAuditEntry(ctx context.Context, entry *model.AuditEntry) error                         // Appends one audit entry
	QueryAuditEntries(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) // Queries entries newest first
	GetDailySummary(ctx context.Context, day time.Time) (*model.AuditSummary, error)             // Aggregates one day of entries
	EnforceAuditRetention(ctx context.Context, cutoff time.Time) (int64, error)                  // Deletes whole days older than the cutoff
}
