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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

func TestRecordApproval(t *testing.T) {
	ds, mock := newTestDatasource(t)

	req := &model.ApprovalRequest{
		ApprovalID: "apr_1",
		WorkItemID: "wki_1",
		Kind:       model.ActionSendMessage,
		Title:      "Send reply to customer",
		Decision:   model.DecisionPending,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_requests")).
		WithArgs(req.ApprovalID, req.WorkItemID, req.Kind, req.Title, sqlmock.AnyArg(), req.Decision, req.Manual, req.CreatedAt, req.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.RecordApproval(context.Background(), req)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveApproval(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WithArgs(model.DecisionApproved, "ops@example.com", "apr_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ResolveApproval(context.Background(), "apr_1", model.DecisionApproved, "ops@example.com")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveApprovalAlreadyResolved(t *testing.T) {
	ds, mock := newTestDatasource(t)

	// decision='pending' guard matched nothing, the first writer already won
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.ResolveApproval(context.Background(), "apr_1", model.DecisionRejected, "ops@example.com")
	assert.Error(t, err)
	assert.Equal(t, faults.NotPending, faults.KindOf(err))
}

func TestResolveApprovalInvalidDecision(t *testing.T) {
	ds, _ := newTestDatasource(t)

	err := ds.ResolveApproval(context.Background(), "apr_1", model.DecisionExpired, "ops@example.com")
	assert.Error(t, err)
	assert.Equal(t, faults.Permanent, faults.KindOf(err))
}

func TestExpireApproval(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("SET decision = 'expired'")).
		WithArgs("apr_2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ExpireApproval(context.Background(), "apr_2")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireApprovalLosesToDecision(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("SET decision = 'expired'")).
		WithArgs("apr_2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.ExpireApproval(context.Background(), "apr_2")
	assert.Error(t, err)
	assert.Equal(t, faults.NotPending, faults.KindOf(err))
}

func TestGetPendingApprovals(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"approval_id", "work_item_id", "action_kind", "title", "details", "decision", "approver", "manual", "created_at", "expires_at", "resolved_at"}).
		AddRow("apr_1", "wki_1", "send_message", "Send reply", []byte(`{}`), "pending", nil, false, now.Add(-25*time.Hour), now.Add(-time.Hour), nil).
		AddRow("apr_2", nil, "payment", "Replay vendor payment", []byte(`{"amount":"120.00"}`), "pending", nil, true, now.Add(-26*time.Hour), now.Add(-2*time.Hour), nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM approval_requests")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	requests, err := ds.GetPendingApprovals(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, "wki_1", requests[0].WorkItemID)
	assert.True(t, requests[1].Manual)
	assert.Equal(t, "120.00", requests[1].Details["amount"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApprovalNotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM approval_requests")).
		WithArgs("apr_missing").
		WillReturnRows(sqlmock.NewRows([]string{"approval_id"}))

	_, err := ds.GetApproval(context.Background(), "apr_missing")
	assert.Error(t, err)
	assert.Equal(t, faults.NotFound, faults.KindOf(err))
}
