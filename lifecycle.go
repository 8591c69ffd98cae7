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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/database"
	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/internal/retry"
	"github.com/stewardhq/steward/model"
)

const dedupKey = "steward:dedup"

var tracer = otel.Tracer("steward.lifecycle")

// Ingest records a new work item in state ingested. Ingestion is idempotent:
// the work item id is derived from (source, external id), a Redis sorted set
// gives a fast duplicate check, and the database insert is the authority. A
// duplicate yields the existing work item with a DUPLICATE_IGNORED fault and
// an audit entry, never a second work item.
func (s *Steward) Ingest(ctx context.Context, source model.Source, externalID string, payload []byte, priority model.Priority) (*model.WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Ingesting work item")
	defer span.End()

	if priority == "" {
		priority = model.PriorityNormal
	}

	now := time.Now()
	item := &model.WorkItem{
		WorkItemID:       model.WorkItemIDFor(source, externalID),
		Source:           source,
		ExternalID:       externalID,
		Payload:          payload,
		State:            model.StateIngested,
		Priority:         priority,
		CreatedAt:        now,
		LastTransitionAt: now,
	}

	// Fast path: the dedup set answers most duplicate checks without a
	// database round trip. Redis being down just means every check falls
	// through to the insert.
	seen, err := s.redis.ZScore(ctx, dedupKey, item.WorkItemID).Result()
	if err == nil && seen > 0 {
		return s.duplicate(ctx, item)
	}

	inserted, err := s.datasource.RecordWorkItem(ctx, item)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return s.duplicate(ctx, item)
	}

	s.rememberIngested(ctx, item.WorkItemID, now)
	s.audit(ctx, &model.AuditEntry{
		Timestamp:  now,
		ActionType: "work_item_ingested",
		Actor:      "steward",
		Domain:     string(source),
		Target:     item.WorkItemID,
		Parameters: map[string]string{"external_id": externalID, "priority": string(priority)},
		Result:     model.ResultSuccess,
	})
	return item, nil
}

// rememberIngested adds the id to the bounded dedup set and trims the oldest
// entries beyond the configured cap.
func (s *Steward) rememberIngested(ctx context.Context, workItemID string, now time.Time) {
	conf, err := config.Fetch()
	if err != nil {
		return
	}
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, dedupKey, redis.Z{Score: float64(now.UnixNano()), Member: workItemID})
	pipe.ZRemRangeByRank(ctx, dedupKey, 0, int64(-(conf.Dedup.MaxEntries + 1)))
	if _, err := pipe.Exec(ctx); err != nil {
		logrus.Warnf("failed to update dedup set: %v", err)
	}
}

// duplicate audits the ignored event and hands the caller the work item that
// already exists under that id, so the caller can keep working with it.
func (s *Steward) duplicate(ctx context.Context, item *model.WorkItem) (*model.WorkItem, error) {
	s.auditDuplicate(ctx, item)
	fault := faults.Newf(faults.DuplicateIgnored, "work item %s already ingested", item.WorkItemID)
	existing, err := s.datasource.GetWorkItem(ctx, item.WorkItemID)
	if err != nil {
		logrus.Warnf("failed to load existing work item %s: %v", item.WorkItemID, err)
		return nil, fault
	}
	return existing, fault
}

func (s *Steward) auditDuplicate(ctx context.Context, item *model.WorkItem) {
	s.audit(ctx, &model.AuditEntry{
		Timestamp:  time.Now(),
		ActionType: "work_item_ingested",
		Actor:      "steward",
		Domain:     string(item.Source),
		Target:     item.WorkItemID,
		Parameters: map[string]string{"external_id": item.ExternalID},
		Result:     model.ResultBlocked,
		Error:      "duplicate external event ignored",
	})
}

// PlanItem plans an ingested work item and advances it. Items whose plan
// needs a human decision move to pending_approval with an approval request
// and a scheduled expiry; the rest sit in planned, ready for execution.
func (s *Steward) PlanItem(ctx context.Context, workItemID string) (*model.Plan, error) {
	ctx, span := tracer.Start(ctx, "Planning work item")
	defer span.End()

	item, err := s.datasource.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.PlanWorkItem(ctx, item)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.datasource.UpdateWorkItemState(ctx, workItemID, model.StateIngested, model.StatePlanned, now); err != nil {
		return nil, err
	}
	s.audit(ctx, &model.AuditEntry{
		Timestamp:  now,
		ActionType: "work_item_planned",
		Actor:      "steward",
		Domain:     string(item.Source),
		Target:     workItemID,
		Parameters: map[string]string{"steps": fmt.Sprintf("%d", len(plan.Steps))},
		Result:     model.ResultSuccess,
	})

	if plan.RequiresApproval() {
		gated := firstGatedStep(plan)
		if _, err := s.RequestApproval(ctx, item, gated); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func firstGatedStep(plan *model.Plan) model.PlanStep {
	for _, step := range plan.Steps {
		if step.RequiresApproval {
			return step
		}
	}
	return model.PlanStep{}
}

// RequestApproval creates the approval request gating a work item and moves
// the item to pending_approval. The expiry task is scheduled at creation so
// an unanswered request times out without depending on the sweeper.
func (s *Steward) RequestApproval(ctx context.Context, item *model.WorkItem, step model.PlanStep) (*model.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Requesting approval")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &model.ApprovalRequest{
		ApprovalID: database.GenerateUUIDWithSuffix("apr"),
		WorkItemID: item.WorkItemID,
		Kind:       step.Kind,
		Title:      fmt.Sprintf("Approve %s on %s", step.Kind, step.Service),
		Details:    step.Params,
		Decision:   model.DecisionPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(conf.ApprovalTimeout()),
	}
	if err := s.datasource.RecordApproval(ctx, req); err != nil {
		return nil, err
	}

	if err := s.datasource.UpdateWorkItemState(ctx, item.WorkItemID, model.StatePlanned, model.StatePendingApproval, now); err != nil {
		return nil, err
	}

	if err := s.queue.queueApprovalExpiry(req.ApprovalID, req.ExpiresAt); err != nil {
		logrus.Warnf("failed to schedule expiry for %s, sweeper will catch it: %v", req.ApprovalID, err)
	}

	s.audit(ctx, &model.AuditEntry{
		Timestamp:      now,
		ActionType:     "approval_requested",
		Actor:          "steward",
		Domain:         step.Service,
		Target:         item.WorkItemID,
		Parameters:     map[string]string{"approval_id": req.ApprovalID, "action_kind": string(step.Kind)},
		ApprovalStatus: string(model.DecisionPending),
		Result:         model.ResultSuccess,
	})
	s.notifier.Notify(
		"Approval needed: "+req.Title,
		fmt.Sprintf("Work item %s is waiting for a decision until %s.", item.WorkItemID, req.ExpiresAt.Format(time.RFC822)),
		notification.SeverityWarning,
	)
	return req, nil
}

// RequestManualApproval files a standalone manual request for a never-retry
// action that could not run. It is not tied to a work item transition; a
// human resolves it and re-issues the action deliberately.
func (s *Steward) RequestManualApproval(ctx context.Context, step model.PlanStep, reason string) (*model.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Requesting manual approval")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &model.ApprovalRequest{
		ApprovalID: database.GenerateUUIDWithSuffix("apr"),
		Kind:       step.Kind,
		Title:      fmt.Sprintf("Manual review: %s on %s", step.Kind, step.Service),
		Details:    mergeDetails(step.Params, map[string]string{"reason": reason, "target": step.Target}),
		Decision:   model.DecisionPending,
		Manual:     true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(conf.ApprovalTimeout()),
	}
	if err := s.datasource.RecordApproval(ctx, req); err != nil {
		return nil, err
	}

	if err := s.queue.queueApprovalExpiry(req.ApprovalID, req.ExpiresAt); err != nil {
		logrus.Warnf("failed to schedule expiry for %s, sweeper will catch it: %v", req.ApprovalID, err)
	}

	s.notifier.Notify(
		req.Title,
		fmt.Sprintf("A %s action was held because %s. It will NOT run automatically.", step.Kind, reason),
		notification.SeverityCritical,
	)
	return req, nil
}

func mergeDetails(base, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Resolve applies a human decision to a pending approval request. The
// database does the check-and-set; a request that already expired or was
// resolved by someone else yields NOT_PENDING and the decision is discarded.
func (s *Steward) Resolve(ctx context.Context, approvalID string, decision model.Decision, approver string) error {
	ctx, span := tracer.Start(ctx, "Resolving approval")
	defer span.End()

	if err := s.datasource.ResolveApproval(ctx, approvalID, decision, approver); err != nil {
		return err
	}

	req, err := s.datasource.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}

	now := time.Now()
	if req.WorkItemID != "" {
		target := model.StateApproved
		if decision == model.DecisionRejected {
			target = model.StateRejected
		}
		if err := s.datasource.UpdateWorkItemState(ctx, req.WorkItemID, model.StatePendingApproval, target, now); err != nil {
			return err
		}
	}

	s.audit(ctx, &model.AuditEntry{
		Timestamp:      now,
		ActionType:     "approval_resolved",
		Actor:          approver,
		Target:         req.WorkItemID,
		Parameters:     map[string]string{"approval_id": approvalID, "action_kind": string(req.Kind)},
		ApprovalStatus: string(decision),
		ApprovedBy:     approver,
		Result:         model.ResultSuccess,
	})
	return nil
}

// ExpireOne expires a single pending approval request if its deadline has
// passed. Invoked by the scheduled expiry task; losing the race to a human
// decision is normal and reported as NOT_PENDING.
func (s *Steward) ExpireOne(ctx context.Context, approvalID string) error {
	ctx, span := tracer.Start(ctx, "Expiring approval")
	defer span.End()

	req, err := s.datasource.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if !req.Expired(time.Now()) {
		return faults.Newf(faults.NotPending, "approval request %s has not reached its expiry", approvalID)
	}
	return s.expire(ctx, req)
}

// SweepExpired expires every pending request past its deadline. The sweeper
// is the safety net behind the scheduled per-request expiry tasks, so a lost
// task never leaves a request pending forever.
func (s *Steward) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Sweeping expired approvals")
	defer span.End()

	pending, err := s.datasource.GetPendingApprovals(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range pending {
		if err := s.expire(ctx, req); err != nil {
			if faults.Is(err, faults.NotPending) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Steward) expire(ctx context.Context, req *model.ApprovalRequest) error {
	if err := s.datasource.ExpireApproval(ctx, req.ApprovalID); err != nil {
		return err
	}

	now := time.Now()
	if req.WorkItemID != "" {
		if err := s.datasource.UpdateWorkItemState(ctx, req.WorkItemID, model.StatePendingApproval, model.StateExpired, now); err != nil && !faults.Is(err, faults.NotPending) {
			return err
		}
	}

	s.audit(ctx, &model.AuditEntry{
		Timestamp:      now,
		ActionType:     "approval_expired",
		Actor:          "steward",
		Target:         req.WorkItemID,
		Parameters:     map[string]string{"approval_id": req.ApprovalID, "action_kind": string(req.Kind)},
		ApprovalStatus: string(model.DecisionExpired),
		Result:         model.ResultSuccess,
	})

	// An expired manual request means a held irreversible action was never
	// reviewed. That must escalate loudly, not vanish into the log.
	if req.Manual {
		s.notifier.Notify(
			"UNREVIEWED: "+req.Title,
			fmt.Sprintf("Manual approval request %s expired after %s without a decision. The held action was discarded and needs human follow-up.", req.ApprovalID, req.ExpiresAt.Sub(req.CreatedAt)),
			notification.SeverityCritical,
		)
	}
	return nil
}

// ListByState returns work items in a given state, priority-ordered.
func (s *Steward) ListByState(ctx context.Context, state model.WorkItemState, limit int) ([]*model.WorkItem, error) {
	return s.datasource.GetWorkItemsByState(ctx, state, limit)
}

// NextPending returns the work items eligible for execution: approved items
// and planned items that never needed approval, ordered by priority then age.
func (s *Steward) NextPending(ctx context.Context, limit int) ([]*model.WorkItem, error) {
	ctx, span := tracer.Start(ctx, "Listing executable work items")
	defer span.End()

	approved, err := s.datasource.GetWorkItemsByState(ctx, model.StateApproved, limit)
	if err != nil {
		return nil, err
	}
	planned, err := s.datasource.GetWorkItemsByState(ctx, model.StatePlanned, limit)
	if err != nil {
		return nil, err
	}

	items := append(approved, planned...)
	model.SortPending(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ExecuteItem runs a work item's plan step by step. Every step consults the
// service health gate first; steps against an unavailable service are queued
// for replay, except never-retry kinds, which become manual approval requests
// and fail the item. Each attempted side effect lands in the audit log
// whatever its outcome.
func (s *Steward) ExecuteItem(ctx context.Context, workItemID string) error {
	ctx, span := tracer.Start(ctx, "Executing work item")
	defer span.End()

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	item, err := s.datasource.GetWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}
	if item.State != model.StatePlanned && item.State != model.StateApproved {
		return faults.Newf(faults.NotPending, "work item %s is in state %s, not executable", workItemID, item.State)
	}

	plan, err := s.planner.PlanWorkItem(ctx, item)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.datasource.UpdateWorkItemState(ctx, workItemID, item.State, model.StateExecuting, now); err != nil {
		return err
	}
	if _, err := s.datasource.IncrementWorkItemAttempts(ctx, workItemID); err != nil {
		logrus.Warnf("failed to bump attempts for %s: %v", workItemID, err)
	}

	approvalStatus := ""
	if item.State == model.StateApproved {
		approvalStatus = string(model.DecisionApproved)
	}

	executor := retry.NewExecutor(
		conf.Retry.MaxAttempts,
		time.Duration(conf.Retry.BaseDelaySec)*time.Second,
		time.Duration(conf.Retry.MaxDelaySec)*time.Second,
	)

	for _, step := range plan.Steps {
		if err := s.executeStep(ctx, item, step, executor, approvalStatus); err != nil {
			s.settleFailure(ctx, item, err)
			return err
		}
	}

	done := time.Now()
	if err := s.datasource.UpdateWorkItemState(ctx, workItemID, model.StateExecuting, model.StateDone, done); err != nil {
		return err
	}
	s.audit(ctx, &model.AuditEntry{
		Timestamp:  done,
		ActionType: "work_item_done",
		Actor:      "steward",
		Domain:     string(item.Source),
		Target:     workItemID,
		Result:     model.ResultSuccess,
	})
	return nil
}

// settleFailure parks a work item whose step could not be settled. A step held
// for manual review keeps the item in executing until a human re-issues the
// action; permanent failures archive the item; everything else goes to failed,
// where the retryable re-entry edge stays open.
func (s *Steward) settleFailure(ctx context.Context, item *model.WorkItem, cause error) {
	var target model.WorkItemState
	switch faults.KindOf(cause) {
	case faults.SafetyBlocked:
		return
	case faults.Permanent:
		target = model.StateArchived
	default:
		target = model.StateFailed
	}
	now := time.Now()
	if err := s.datasource.UpdateWorkItemState(ctx, item.WorkItemID, model.StateExecuting, target, now); err != nil {
		logrus.Errorf("failed to mark %s %s: %v", item.WorkItemID, target, err)
		return
	}
	s.audit(ctx, &model.AuditEntry{
		Timestamp:  now,
		ActionType: "work_item_" + string(target),
		Actor:      "steward",
		Domain:     string(item.Source),
		Target:     item.WorkItemID,
		Result:     model.ResultFailure,
		Error:      cause.Error(),
	})
}

// ArchiveSettled moves rejected and expired work items to their terminal
// archived state. Run by the sweeper alongside SweepExpired.
func (s *Steward) ArchiveSettled(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Archiving settled work items")
	defer span.End()

	archived := 0
	for _, state := range []model.WorkItemState{model.StateRejected, model.StateExpired} {
		items, err := s.datasource.GetWorkItemsByState(ctx, state, 0)
		if err != nil {
			return archived, err
		}
		for _, item := range items {
			now := time.Now()
			if err := s.datasource.UpdateWorkItemState(ctx, item.WorkItemID, state, model.StateArchived, now); err != nil {
				if faults.Is(err, faults.NotPending) {
					continue
				}
				return archived, err
			}
			s.audit(ctx, &model.AuditEntry{
				Timestamp:  now,
				ActionType: "work_item_archived",
				Actor:      "steward",
				Domain:     string(item.Source),
				Target:     item.WorkItemID,
				Parameters: map[string]string{"from": string(state)},
				Result:     model.ResultSuccess,
			})
			archived++
		}
	}
	return archived, nil
}

// RetryFailed re-enters a failed work item into the approval gate. The retry
// is always human-gated: a fresh approval request is filed and the item moves
// back to pending_approval, so nothing re-runs without a decision.
func (s *Steward) RetryFailed(ctx context.Context, workItemID string) (*model.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "Re-entering failed work item")
	defer span.End()

	item, err := s.datasource.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item.State != model.StateFailed {
		return nil, faults.Newf(faults.NotPending, "work item %s is in state %s, not failed", workItemID, item.State)
	}

	plan, err := s.planner.PlanWorkItem(ctx, item)
	if err != nil {
		return nil, err
	}
	step := firstGatedStep(plan)
	if step.Kind == "" && len(plan.Steps) > 0 {
		step = plan.Steps[0]
	}

	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &model.ApprovalRequest{
		ApprovalID: database.GenerateUUIDWithSuffix("apr"),
		WorkItemID: item.WorkItemID,
		Kind:       step.Kind,
		Title:      fmt.Sprintf("Retry %s on %s", step.Kind, step.Service),
		Details:    mergeDetails(step.Params, map[string]string{"attempts": fmt.Sprintf("%d", item.Attempts)}),
		Decision:   model.DecisionPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(conf.ApprovalTimeout()),
	}
	if err := s.datasource.RecordApproval(ctx, req); err != nil {
		return nil, err
	}

	if err := s.datasource.UpdateWorkItemState(ctx, workItemID, model.StateFailed, model.StatePendingApproval, now); err != nil {
		return nil, err
	}

	if err := s.queue.queueApprovalExpiry(req.ApprovalID, req.ExpiresAt); err != nil {
		logrus.Warnf("failed to schedule expiry for %s, sweeper will catch it: %v", req.ApprovalID, err)
	}

	s.audit(ctx, &model.AuditEntry{
		Timestamp:      now,
		ActionType:     "work_item_retry_requested",
		Actor:          "steward",
		Domain:         step.Service,
		Target:         workItemID,
		Parameters:     map[string]string{"approval_id": req.ApprovalID, "action_kind": string(step.Kind)},
		ApprovalStatus: string(model.DecisionPending),
		Result:         model.ResultSuccess,
	})
	s.notifier.Notify(
		"Retry needs approval: "+req.Title,
		fmt.Sprintf("Work item %s failed after %d attempts and is waiting for a retry decision.", workItemID, item.Attempts),
		notification.SeverityWarning,
	)
	return req, nil
}

// executeStep runs one plan step through the health gate and retry executor.
// A nil return means the step is settled: executed, or queued for replay.
func (s *Steward) executeStep(ctx context.Context, item *model.WorkItem, step model.PlanStep, executor *retry.Executor, approvalStatus string) error {
	entry := &model.AuditEntry{
		Timestamp:      time.Now(),
		ActionType:     string(step.Kind),
		Actor:          "steward",
		Domain:         step.Service,
		Target:         step.Target,
		Parameters:     step.Params,
		ApprovalStatus: approvalStatus,
	}

	available, err := s.health.IsAvailable(ctx, step.Service)
	if err != nil {
		logrus.Warnf("health check for %s failed, assuming available: %v", step.Service, err)
		available = true
	}

	if !available {
		return s.holdStep(ctx, item, step, entry, fmt.Sprintf("service %s is unavailable", step.Service))
	}

	exec, err := s.executors.Lookup(step.Kind)
	if err != nil {
		entry.Result = model.ResultFailure
		entry.Error = err.Error()
		s.audit(ctx, entry)
		return err
	}

	opName := fmt.Sprintf("%s/%s", step.Service, step.Kind)
	runErr := executor.Execute(ctx, opName, func() error {
		return exec.ExecuteStep(ctx, item, step)
	}, faults.Retryable)

	if runErr == nil {
		if _, err := s.health.RecordSuccess(ctx, step.Service); err != nil {
			logrus.Warnf("failed to record success for %s: %v", step.Service, err)
		}
		s.maybeReplay(ctx, step.Service)
		entry.Result = model.ResultSuccess
		s.audit(ctx, entry)
		return nil
	}

	if _, err := s.health.RecordFailure(ctx, step.Service, runErr); err != nil {
		logrus.Warnf("failed to record failure for %s: %v", step.Service, err)
	}

	if faults.KindOf(runErr) == faults.Permanent {
		entry.Result = model.ResultFailure
		entry.Error = runErr.Error()
		s.audit(ctx, entry)
		return runErr
	}
	return s.holdStep(ctx, item, step, entry, fmt.Sprintf("execution failed: %v", runErr))
}

// ReplayQueued drains a recovered service's deferred actions through the
// registered executors. Every replayed action lands in the audit log; an
// action that fails is recorded as failed and set aside while the drain
// continues behind it.
func (s *Steward) ReplayQueued(ctx context.Context, service string) (int, error) {
	ctx, span := tracer.Start(ctx, "Replaying deferred actions")
	defer span.End()

	return s.health.Replay(ctx, service, func(action model.QueuedAction) error {
		exec, err := s.executors.Lookup(action.Kind)
		if err != nil {
			return err
		}

		step := model.PlanStep{Service: action.Service, Kind: action.Kind, Target: action.Target, Params: action.Params}
		runErr := exec.ExecuteStep(ctx, &model.WorkItem{}, step)

		entry := &model.AuditEntry{
			Timestamp:  time.Now(),
			ActionType: string(action.Kind),
			Actor:      "steward",
			Domain:     action.Service,
			Target:     action.Target,
			Parameters: map[string]string{"replayed_action_id": action.ActionID},
			Result:     model.ResultSuccess,
		}
		if runErr != nil {
			entry.Result = model.ResultFailure
			entry.Error = runErr.Error()
		}
		s.audit(ctx, entry)
		return runErr
	})
}

// maybeReplay kicks a background replay of the service's deferred actions
// after a success, if any are waiting.
func (s *Steward) maybeReplay(ctx context.Context, service string) {
	n, err := s.health.QueuedCount(ctx, service)
	if err != nil || n == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		replayed, err := s.ReplayQueued(ctx, service)
		if err != nil {
			logrus.Warnf("replay for %s stopped after %d actions: %v", service, replayed, err)
			return
		}
		if replayed > 0 {
			logrus.Infof("replayed %d deferred actions on %s", replayed, service)
		}
	}()
}

// holdStep defers a step that cannot run right now. Retryable kinds join the
// service replay queue; never-retry kinds become a manual approval request
// and fail the step.
func (s *Steward) holdStep(ctx context.Context, item *model.WorkItem, step model.PlanStep, entry *model.AuditEntry, reason string) error {
	if step.Kind.NeverRetry() {
		req, err := s.RequestManualApproval(ctx, step, reason)
		if err != nil {
			return err
		}
		entry.Result = model.ResultBlocked
		entry.Error = reason
		if entry.Parameters == nil {
			entry.Parameters = map[string]string{}
		}
		entry.Parameters["manual_approval_id"] = req.ApprovalID
		s.audit(ctx, entry)
		return faults.Newf(faults.SafetyBlocked, "%s held for manual review (%s)", step.Kind, req.ApprovalID)
	}

	action := &model.QueuedAction{
		Service:  step.Service,
		Kind:     step.Kind,
		Target:   step.Target,
		Params:   step.Params,
		QueuedAt: time.Now(),
	}
	if err := s.health.QueueAction(ctx, action); err != nil {
		entry.Result = model.ResultFailure
		entry.Error = err.Error()
		s.audit(ctx, entry)
		return err
	}

	entry.Result = model.ResultQueued
	entry.Error = reason
	s.audit(ctx, entry)
	logrus.Infof("queued %s on %s for replay: %s", step.Kind, step.Service, reason)
	return nil
}
