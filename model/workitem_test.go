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

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkItemIDForIsDeterministic(t *testing.T) {
	a := WorkItemIDFor(SourceMail, "msg-123")
	b := WorkItemIDFor(SourceMail, "msg-123")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^wki_[0-9a-f]{24}$`, a)

	// Same external id from a different source is a different work item
	assert.NotEqual(t, a, WorkItemIDFor(SourceChat, "msg-123"))
	assert.NotEqual(t, a, WorkItemIDFor(SourceMail, "msg-124"))
}

func TestCanTransition(t *testing.T) {
	legal := [][2]WorkItemState{
		{StateIngested, StatePlanned},
		{StatePlanned, StatePendingApproval},
		{StatePlanned, StateExecuting},
		{StatePendingApproval, StateApproved},
		{StatePendingApproval, StateRejected},
		{StatePendingApproval, StateExpired},
		{StateApproved, StateExecuting},
		{StateExecuting, StateDone},
		{StateExecuting, StateFailed},
		{StateFailed, StatePendingApproval},
		{StateRejected, StateArchived},
		{StateExpired, StateArchived},
	}
	for _, edge := range legal {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	illegal := [][2]WorkItemState{
		{StateIngested, StateExecuting},
		{StateDone, StateExecuting},
		{StateApproved, StateDone},
		{StatePendingApproval, StateExecuting},
		{StateArchived, StateIngested},
		{StateExecuting, StateIngested},
	}
	for _, edge := range illegal {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestSortPendingIsDeterministic(t *testing.T) {
	now := time.Now()
	items := []*WorkItem{
		{WorkItemID: "d", Priority: PriorityNormal, CreatedAt: now},
		{WorkItemID: "b", Priority: PriorityHigh, CreatedAt: now},
		{WorkItemID: "a", Priority: PriorityHigh, CreatedAt: now.Add(-time.Hour)},
		{WorkItemID: "c", Priority: PriorityLow, CreatedAt: now.Add(-2 * time.Hour)},
		{WorkItemID: "e", Priority: PriorityMedium, CreatedAt: now},
	}

	SortPending(items)

	var order []string
	for _, item := range items {
		order = append(order, item.WorkItemID)
	}
	// Priority outranks age; equal priorities run oldest first
	assert.Equal(t, []string{"a", "b", "e", "c", "d"}, order)
}

func TestSortPendingUnknownPrioritySortsLast(t *testing.T) {
	now := time.Now()
	items := []*WorkItem{
		{WorkItemID: "weird", Priority: Priority("urgent"), CreatedAt: now.Add(-time.Hour)},
		{WorkItemID: "normal", Priority: PriorityNormal, CreatedAt: now},
	}

	SortPending(items)
	assert.Equal(t, "normal", items[0].WorkItemID)
}
