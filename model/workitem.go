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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// WorkItemState is the canonical lifecycle state of a work item. Only the
// state machine mutates it.
type WorkItemState string

const (
	StateIngested        WorkItemState = "ingested"
	StatePlanned         WorkItemState = "planned"
	StatePendingApproval WorkItemState = "pending_approval"
	StateApproved        WorkItemState = "approved"
	StateExecuting       WorkItemState = "executing"
	StateDone            WorkItemState = "done"
	StateRejected        WorkItemState = "rejected"
	StateExpired         WorkItemState = "expired"
	StateFailed          WorkItemState = "failed"
	StateArchived        WorkItemState = "archived"
)

// Priority orders pending work items. High outranks medium, medium outranks
// low, low outranks normal.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
)

// priorityRank maps a priority to its sort weight. Unknown priorities sort last.
func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	case PriorityNormal:
		return 3
	default:
		return 4
	}
}

// Source identifies the producer a work item came from.
type Source string

const (
	SourceMail   Source = "mail"
	SourceChat   Source = "chat"
	SourceSocial Source = "social"
	SourceFiles  Source = "files"
)

// WorkItem is the unit of work flowing from ingestion through planning,
// approval, and execution. Producers create it; only the state machine
// mutates its state.
type WorkItem struct {
	ID               int64             `json:"-"`
	WorkItemID       string            `json:"work_item_id"`
	Source           Source            `json:"source"`
	ExternalID       string            `json:"external_id"`
	Payload          json.RawMessage   `json:"payload"`
	Meta             map[string]string `json:"meta,omitempty"`
	State            WorkItemState     `json:"state"`
	Priority         Priority          `json:"priority"`
	Attempts         int               `json:"attempts"`
	CreatedAt        time.Time         `json:"created_at"`
	LastTransitionAt time.Time         `json:"last_transition_at"`
}

// WorkItemIDFor derives the deterministic work item id from a source and the
// producer's external event id. The same (source, externalID) pair always
// yields the same id, which is what makes ingestion idempotent under
// at-least-once delivery.
func WorkItemIDFor(source Source, externalID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", source, externalID)))
	return "wki_" + hex.EncodeToString(sum[:])[:24]
}

// validTransitions enumerates the allowed state machine edges. A work item
// never regresses except via the approval-timeout edge and the retryable
// failure re-entry edge.
var validTransitions = map[WorkItemState][]WorkItemState{
	StateIngested:        {StatePlanned},
	StatePlanned:         {StatePendingApproval, StateExecuting},
	StatePendingApproval: {StateApproved, StateRejected, StateExpired},
	StateApproved:        {StateExecuting},
	StateExecuting:       {StateDone, StateFailed, StateArchived},
	StateFailed:          {StatePendingApproval, StateArchived},
	StateRejected:        {StateArchived},
	StateExpired:         {StateArchived},
}

// CanTransition reports whether moving from one state to another is a legal
// edge of the work item state machine.
func CanTransition(from, to WorkItemState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SortPending orders work items for processing: priority first
// (high > medium > low > normal), then CreatedAt ascending so the oldest item
// of equal priority runs first. The ordering is deterministic.
func SortPending(items []*WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := priorityRank(items[i].Priority), priorityRank(items[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
