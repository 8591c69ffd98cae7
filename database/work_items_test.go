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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func TestRecordWorkItem(t *testing.T) {
	ds, mock := newTestDatasource(t)

	item := &model.WorkItem{
		WorkItemID:       model.WorkItemIDFor(model.SourceMail, "msg-1"),
		Source:           model.SourceMail,
		ExternalID:       "msg-1",
		Payload:          json.RawMessage(`{"subject":"invoice"}`),
		State:            model.StateIngested,
		Priority:         model.PriorityNormal,
		CreatedAt:        time.Now(),
		LastTransitionAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_items")).
		WithArgs(item.WorkItemID, item.Source, item.ExternalID, []byte(item.Payload), sqlmock.AnyArg(), item.State, item.Priority, item.Attempts, item.CreatedAt, item.LastTransitionAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := ds.RecordWorkItem(context.Background(), item)
	assert.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWorkItemDuplicate(t *testing.T) {
	ds, mock := newTestDatasource(t)

	item := &model.WorkItem{
		WorkItemID: model.WorkItemIDFor(model.SourceChat, "evt-7"),
		Source:     model.SourceChat,
		ExternalID: "evt-7",
		State:      model.StateIngested,
		Priority:   model.PriorityNormal,
	}

	// ON CONFLICT DO NOTHING reports zero rows for a duplicate
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_items")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := ds.RecordWorkItem(context.Background(), item)
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkItem(t *testing.T) {
	ds, mock := newTestDatasource(t)

	id := model.WorkItemIDFor(model.SourceMail, "msg-2")
	now := time.Now()
	rows := sqlmock.NewRows([]string{"work_item_id", "source", "external_id", "payload", "meta_data", "state", "priority", "attempts", "created_at", "last_transition_at"}).
		AddRow(id, "mail", "msg-2", []byte(`{}`), []byte(`{"thread":"t1"}`), "planned", "high", 1, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT work_item_id, source, external_id, payload, meta_data, state, priority, attempts, created_at, last_transition_at")).
		WithArgs(id).
		WillReturnRows(rows)

	item, err := ds.GetWorkItem(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, model.StatePlanned, item.State)
	assert.Equal(t, model.PriorityHigh, item.Priority)
	assert.Equal(t, "t1", item.Meta["thread"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkItemNotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT work_item_id")).
		WithArgs("wki_missing").
		WillReturnRows(sqlmock.NewRows([]string{"work_item_id"}))

	_, err := ds.GetWorkItem(context.Background(), "wki_missing")
	assert.Error(t, err)
	assert.Equal(t, faults.NotFound, faults.KindOf(err))
}

func TestUpdateWorkItemState(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_items")).
		WithArgs(model.StatePlanned, sqlmock.AnyArg(), "wki_1", model.StateIngested).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateWorkItemState(context.Background(), "wki_1", model.StateIngested, model.StatePlanned, time.Now())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWorkItemStateIllegalEdge(t *testing.T) {
	ds, _ := newTestDatasource(t)

	// done is terminal, nothing leaves it
	err := ds.UpdateWorkItemState(context.Background(), "wki_1", model.StateDone, model.StateExecuting, time.Now())
	assert.Error(t, err)
	assert.Equal(t, faults.Permanent, faults.KindOf(err))
}

func TestUpdateWorkItemStateLostRace(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_items")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateWorkItemState(context.Background(), "wki_1", model.StatePendingApproval, model.StateApproved, time.Now())
	assert.Error(t, err)
	assert.Equal(t, faults.NotPending, faults.KindOf(err))
}

func TestGetWorkItemsByStateOrdering(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"work_item_id", "source", "external_id", "payload", "meta_data", "state", "priority", "attempts", "created_at", "last_transition_at"}).
		AddRow("wki_a", "mail", "a", []byte(`{}`), []byte(`{}`), "planned", "high", 0, now.Add(-time.Hour), now).
		AddRow("wki_b", "chat", "b", []byte(`{}`), []byte(`{}`), "planned", "medium", 0, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM work_items")).
		WithArgs(model.StatePlanned, 10).
		WillReturnRows(rows)

	items, err := ds.GetWorkItemsByState(context.Background(), model.StatePlanned, 10)
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "wki_a", items[0].WorkItemID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
