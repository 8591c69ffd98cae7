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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stewardhq/steward/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Work item methods

func (m *MockDataSource) RecordWorkItem(ctx context.Context, item *model.WorkItem) (bool, error) {
	args := m.Called(ctx, item)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetWorkItem(ctx context.Context, id string) (*model.WorkItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkItem), args.Error(1)
}

func (m *MockDataSource) UpdateWorkItemState(ctx context.Context, id string, from, to model.WorkItemState, at time.Time) error {
	args := m.Called(ctx, id, from, to, at)
	return args.Error(0)
}

func (m *MockDataSource) IncrementWorkItemAttempts(ctx context.Context, id string) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) GetWorkItemsByState(ctx context.Context, state model.WorkItemState, limit int) ([]*model.WorkItem, error) {
	args := m.Called(ctx, state, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WorkItem), args.Error(1)
}

// Approval methods

func (m *MockDataSource) RecordApproval(ctx context.Context, req *model.ApprovalRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockDataSource) GetApproval(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApprovalRequest), args.Error(1)
}

func (m *MockDataSource) ResolveApproval(ctx context.Context, id string, decision model.Decision, approver string) error {
	args := m.Called(ctx, id, decision, approver)
	return args.Error(0)
}

func (m *MockDataSource) ExpireApproval(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) GetPendingApprovals(ctx context.Context, before time.Time) ([]*model.ApprovalRequest, error) {
	args := m.Called(ctx, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ApprovalRequest), args.Error(1)
}

func (m *MockDataSource) GetPendingApprovalForWorkItem(ctx context.Context, workItemID string) (*model.ApprovalRequest, error) {
	args := m.Called(ctx, workItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApprovalRequest), args.Error(1)
}

// Audit methods

func (m *MockDataSource) RecordAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) QueryAuditEntries(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.AuditEntry), args.Error(1)
}

func (m *MockDataSource) GetDailySummary(ctx context.Context, day time.Time) (*model.AuditSummary, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditSummary), args.Error(1)
}

func (m *MockDataSource) EnforceAuditRetention(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
