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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// RecordAuditEntry appends one entry to the audit log. Entries are insert-only;
// there is no update path anywhere in the codebase.
func (d Datasource) RecordAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	ctx, span := otel.Tracer("audit.database").Start(ctx, "Appending audit entry")
	defer span.End()

	parametersJSON, err := json.Marshal(entry.Parameters)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to marshal parameters", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO audit_entries (log_date, timestamp, action_type, actor, domain, target, parameters, approval_status, approved_by, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.Timestamp.Format("2006-01-02"), entry.Timestamp, entry.ActionType, entry.Actor, entry.Domain, entry.Target, parametersJSON, entry.ApprovalStatus, entry.ApprovedBy, entry.Result, entry.Error)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to record audit entry", err)
	}
	return nil
}

// QueryAuditEntries returns entries matching the filter, newest first.
func (d Datasource) QueryAuditEntries(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) {
	ctx, span := otel.Tracer("audit.database").Start(ctx, "Querying audit entries")
	defer span.End()

	var conditions []string
	var args []interface{}
	addCondition := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addCondition("action_type", filter.ActionType)
	addCondition("domain", filter.Domain)
	addCondition("actor", filter.Actor)
	addCondition("result", filter.Result)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT timestamp, action_type, actor, domain, target, parameters, approval_status, approved_by, result, error
		FROM audit_entries
		%s
		ORDER BY timestamp DESC
		LIMIT $%d
	`, where, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "failed to query audit entries", err)
	}
	defer rows.Close()

	entries := []*model.AuditEntry{}
	for rows.Next() {
		entry := &model.AuditEntry{}
		var parametersJSON []byte
		err = rows.Scan(&entry.Timestamp, &entry.ActionType, &entry.Actor, &entry.Domain, &entry.Target, &parametersJSON, &entry.ApprovalStatus, &entry.ApprovedBy, &entry.Result, &entry.Error)
		if err != nil {
			return nil, faults.Wrap(faults.Internal, "failed to scan audit entry", err)
		}
		if len(parametersJSON) > 0 {
			if err := json.Unmarshal(parametersJSON, &entry.Parameters); err != nil {
				return nil, faults.Wrap(faults.Internal, "failed to unmarshal parameters", err)
			}
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Internal, "error while iterating over audit entries", err)
	}
	return entries, nil
}

// GetDailySummary aggregates one day of audit entries: totals by result,
// domain, and action type, plus the individual failures for review.
func (d Datasource) GetDailySummary(ctx context.Context, day time.Time) (*model.AuditSummary, error) {
	ctx, span := otel.Tracer("audit.database").Start(ctx, "Building daily audit summary")
	defer span.End()

	logDate := day.Format("2006-01-02")
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT timestamp, action_type, domain, result, error
		FROM audit_entries
		WHERE log_date = $1
		ORDER BY timestamp ASC
	`, logDate)
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "failed to query audit entries for summary", err)
	}
	defer rows.Close()

	summary := &model.AuditSummary{
		Date:         logDate,
		ByResult:     map[string]int{},
		ByDomain:     map[string]int{},
		ByActionType: map[string]int{},
		Failures:     []model.AuditFailure{},
	}

	for rows.Next() {
		var timestamp time.Time
		var actionType, domain, result, errMsg string
		if err := rows.Scan(&timestamp, &actionType, &domain, &result, &errMsg); err != nil {
			return nil, faults.Wrap(faults.Internal, "failed to scan audit entry", err)
		}
		summary.TotalActions++
		summary.ByResult[result]++
		if domain != "" {
			summary.ByDomain[domain]++
		}
		summary.ByActionType[actionType]++
		if result == model.ResultFailure {
			summary.Failures = append(summary.Failures, model.AuditFailure{
				ActionType: actionType,
				Domain:     domain,
				Error:      errMsg,
				Timestamp:  timestamp,
			})
		}
	}

	if err = rows.Err(); err != nil {
		return nil, faults.Wrap(faults.Internal, "error while iterating over audit entries", err)
	}
	return summary, nil
}

// EnforceAuditRetention deletes audit entries older than the cutoff. Deletion
// is by whole day: any day strictly before the cutoff's date goes, the
// cutoff's own day stays.
func (d Datasource) EnforceAuditRetention(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := otel.Tracer("audit.database").Start(ctx, "Enforcing audit retention")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM audit_entries
		WHERE log_date < $1
	`, cutoff.Format("2006-01-02"))
	if err != nil {
		return 0, faults.Wrap(faults.Internal, "failed to enforce audit retention", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, faults.Wrap(faults.Internal, "failed to read retention result", err)
	}
	return deleted, nil
}
