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
	"database/sql"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// RecordApproval records a new approval request.
func (d Datasource) RecordApproval(ctx context.Context, req *model.ApprovalRequest) error {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Saving approval request to db")
	defer span.End()

	detailsJSON, err := json.Marshal(req.Details)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to marshal details", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO approval_requests (approval_id, work_item_id, action_kind, title, details, decision, manual, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ApprovalID, req.WorkItemID, req.Kind, req.Title, detailsJSON, req.Decision, req.Manual, req.CreatedAt, req.ExpiresAt)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to record approval request", err)
	}
	return nil
}

// GetApproval retrieves an approval request by its ID.
func (d Datasource) GetApproval(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Retrieving approval request from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT approval_id, work_item_id, action_kind, title, details, decision, approver, manual, created_at, expires_at, resolved_at
		FROM approval_requests
		WHERE approval_id = $1
	`, id)

	req, err := scanApproval(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.Newf(faults.NotFound, "approval request with ID '%s' not found", id)
		}
		return nil, faults.Wrap(faults.Internal, "failed to retrieve approval request", err)
	}
	return req, nil
}

// ResolveApproval applies a human decision to a pending request. The update is
// a check-and-set on decision='pending' and the expiry deadline: the first
// writer wins, and a request that was already resolved, expired, or is past
// its deadline yields a NOT_PENDING fault so the loser of the race knows its
// decision did not take effect.
func (d Datasource) ResolveApproval(ctx context.Context, id string, decision model.Decision, approver string) error {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Resolving approval request")
	defer span.End()

	if decision != model.DecisionApproved && decision != model.DecisionRejected {
		return faults.Newf(faults.Permanent, "invalid resolution decision %s", decision)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE approval_requests
		SET decision = $1, approver = $2, resolved_at = NOW()
		WHERE approval_id = $3 AND decision = 'pending' AND expires_at > NOW()
	`, decision, approver, id)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to resolve approval request", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to read resolve result", err)
	}
	if affected == 0 {
		return faults.Newf(faults.NotPending, "approval request '%s' is not pending", id)
	}
	return nil
}

// ExpireApproval marks a pending request expired. Same check-and-set as
// ResolveApproval, so a decision landing just before the sweeper always wins.
func (d Datasource) ExpireApproval(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Expiring approval request")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE approval_requests
		SET decision = 'expired', resolved_at = NOW()
		WHERE approval_id = $1 AND decision = 'pending'
	`, id)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to expire approval request", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to read expire result", err)
	}
	if affected == 0 {
		return faults.Newf(faults.NotPending, "approval request '%s' is not pending", id)
	}
	return nil
}

// GetPendingApprovals retrieves pending requests whose expiry has passed, for
// the sweeper.
func (d Datasource) GetPendingApprovals(ctx context.Context, before time.Time) ([]*model.ApprovalRequest, error) {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Listing expired pending approvals")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT approval_id, work_item_id, action_kind, title, details, decision, approver, manual, created_at, expires_at, resolved_at
		FROM approval_requests
		WHERE decision = 'pending' AND expires_at <= $1
		ORDER BY expires_at ASC
	`, before)
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "failed to retrieve pending approvals", err)
	}
	defer rows.Close()

	requests := []*model.ApprovalRequest{}
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, faults.Wrap(faults.Internal, "failed to scan approval request", err)
		}
		requests = append(requests, req)
	}

	if err = rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Internal, "error while iterating over pending approvals", err)
	}
	return requests, nil
}

// GetPendingApprovalForWorkItem retrieves the active pending request blocking
// a work item.
func (d Datasource) GetPendingApprovalForWorkItem(ctx context.Context, workItemID string) (*model.ApprovalRequest, error) {
	ctx, span := otel.Tracer("approval.database").Start(ctx, "Retrieving pending approval for work item")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT approval_id, work_item_id, action_kind, title, details, decision, approver, manual, created_at, expires_at, resolved_at
		FROM approval_requests
		WHERE work_item_id = $1 AND decision = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, workItemID)

	req, err := scanApproval(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.Newf(faults.NotFound, "no pending approval for work item '%s'", workItemID)
		}
		return nil, faults.Wrap(faults.Internal, "failed to retrieve pending approval", err)
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row rowScanner) (*model.ApprovalRequest, error) {
	req := &model.ApprovalRequest{}
	var workItemID, approver sql.NullString
	var detailsJSON []byte
	var resolvedAt sql.NullTime
	err := row.Scan(&req.ApprovalID, &workItemID, &req.Kind, &req.Title, &detailsJSON, &req.Decision, &approver, &req.Manual, &req.CreatedAt, &req.ExpiresAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	req.WorkItemID = workItemID.String
	req.Approver = approver.String
	if resolvedAt.Valid {
		req.ResolvedAt = &resolvedAt.Time
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &req.Details); err != nil {
			return nil, err
		}
	}
	return req, nil
}
