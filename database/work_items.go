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
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// RecordWorkItem inserts a work item. The insert is idempotent on
// work_item_id: a duplicate is silently skipped and reported as inserted=false
// so the caller can audit the duplicate without failing ingestion.
func (d Datasource) RecordWorkItem(ctx context.Context, item *model.WorkItem) (bool, error) {
	ctx, span := otel.Tracer("work_item.database").Start(ctx, "Saving work item to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(item.Meta)
	if err != nil {
		return false, faults.Wrap(faults.Internal, "failed to marshal meta data", err)
	}

	res, err := d.Conn.ExecContext(ctx, `
		INSERT INTO work_items (work_item_id, source, external_id, payload, meta_data, state, priority, attempts, created_at, last_transition_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (work_item_id) DO NOTHING
	`, item.WorkItemID, item.Source, item.ExternalID, []byte(item.Payload), metaDataJSON, item.State, item.Priority, item.Attempts, item.CreatedAt, item.LastTransitionAt)
	if err != nil {
		return false, faults.Wrap(faults.Internal, "failed to record work item", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, faults.Wrap(faults.Internal, "failed to read insert result", err)
	}
	return affected == 1, nil
}

// GetWorkItem retrieves a work item by its ID.
func (d Datasource) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	ctx, span := otel.Tracer("work_item.database").Start(ctx, "Retrieving work item from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT work_item_id, source, external_id, payload, meta_data, state, priority, attempts, created_at, last_transition_at
		FROM work_items
		WHERE work_item_id = $1
	`, id)

	item := &model.WorkItem{}
	var payload, metaDataJSON []byte
	err := row.Scan(&item.WorkItemID, &item.Source, &item.ExternalID, &payload, &metaDataJSON, &item.State, &item.Priority, &item.Attempts, &item.CreatedAt, &item.LastTransitionAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, faults.Newf(faults.NotFound, "work item with ID '%s' not found", id)
		}
		return nil, faults.Wrap(faults.Internal, "failed to retrieve work item", err)
	}

	item.Payload = json.RawMessage(payload)
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &item.Meta); err != nil {
			return nil, faults.Wrap(faults.Internal, "failed to unmarshal meta data", err)
		}
	}
	return item, nil
}

// UpdateWorkItemState moves a work item from one state to another. The update
// is a compare-and-set on the current state: if the item has moved on since
// the caller read it, zero rows match and the caller gets a NOT_PENDING fault
// instead of a silently clobbered state.
func (d Datasource) UpdateWorkItemState(ctx context.Context, id string, from, to model.WorkItemState, at time.Time) error {
	ctx, span := otel.Tracer("work_item.database").Start(ctx, "Updating work item state")
	defer span.End()

	if !model.CanTransition(from, to) {
		return faults.Newf(faults.Permanent, "illegal state transition %s -> %s", from, to)
	}

	res, err := d.Conn.ExecContext(ctx, `
		UPDATE work_items
		SET state = $1, last_transition_at = $2
		WHERE work_item_id = $3 AND state = $4
	`, to, at, id, from)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to update work item state", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to read update result", err)
	}
	if affected == 0 {
		return faults.Newf(faults.NotPending, "work item '%s' is no longer in state %s", id, from)
	}
	return nil
}

// IncrementWorkItemAttempts bumps the attempt counter and returns the new
// count.
func (d Datasource) IncrementWorkItemAttempts(ctx context.Context, id string) (int, error) {
	ctx, span := otel.Tracer("work_item.database").Start(ctx, "Incrementing work item attempts")
	defer span.End()

	var attempts int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE work_items
		SET attempts = attempts + 1
		WHERE work_item_id = $1
		RETURNING attempts
	`, id).Scan(&attempts)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, faults.Newf(faults.NotFound, "work item with ID '%s' not found", id)
		}
		return 0, faults.Wrap(faults.Internal, "failed to increment attempts", err)
	}
	return attempts, nil
}

// GetWorkItemsByState retrieves work items in the given state, ordered by
// priority (high first) then age (oldest first). The ordering matches the
// in-memory sort so a restart resumes processing in the same order.
func (d Datasource) GetWorkItemsByState(ctx context.Context, state model.WorkItemState, limit int) ([]*model.WorkItem, error) {
	ctx, span := otel.Tracer("work_item.database").Start(ctx, "Listing work items by state")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT work_item_id, source, external_id, payload, meta_data, state, priority, attempts, created_at, last_transition_at
		FROM work_items
		WHERE state = $1
		ORDER BY CASE priority
			WHEN 'high' THEN 0
			WHEN 'medium' THEN 1
			WHEN 'low' THEN 2
			WHEN 'normal' THEN 3
			ELSE 4
		END, created_at ASC
		LIMIT $2
	`, state, limit)
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "failed to retrieve work items", err)
	}
	defer rows.Close()

	items := []*model.WorkItem{}
	for rows.Next() {
		item := &model.WorkItem{}
		var payload, metaDataJSON []byte
		err = rows.Scan(&item.WorkItemID, &item.Source, &item.ExternalID, &payload, &metaDataJSON, &item.State, &item.Priority, &item.Attempts, &item.CreatedAt, &item.LastTransitionAt)
		if err != nil {
			return nil, faults.Wrap(faults.Internal, "failed to scan work item", err)
		}
		item.Payload = json.RawMessage(payload)
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &item.Meta); err != nil {
				return nil, faults.Wrap(faults.Internal, "failed to unmarshal meta data", err)
			}
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Internal, fmt.Sprintf("error while iterating over work items in state %s", state), err)
	}
	return items, nil
}
