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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/database"
	"github.com/stewardhq/steward/internal/faults"
	redlock "github.com/stewardhq/steward/internal/lock"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/model"
)

const (
	healthKeyPrefix = "steward:health:"
	queueKeyPrefix  = "steward:queue:"
	failedKeyPrefix = "steward:queue-failed:"
	replayLockTTL   = 30 * time.Second
)

// HealthTracker is the per-service circuit breaker. Failure counters and the
// per-service action queues live in Redis so the view of an outage survives a
// restart of the control plane; the in-memory map is only a working copy.
type HealthTracker struct {
	redis    redis.UniversalClient
	conf     *config.Configuration
	notifier Notifier

	mu       sync.Mutex
	services map[string]*model.ServiceHealth
	locks    map[string]*sync.Mutex
}

// NewHealthTracker returns a tracker using the configured global and
// per-service thresholds.
func NewHealthTracker(client redis.UniversalClient, conf *config.Configuration, notifier Notifier) *HealthTracker {
	return &HealthTracker{
		redis:    client,
		conf:     conf,
		notifier: notifier,
		services: make(map[string]*model.ServiceHealth),
		locks:    make(map[string]*sync.Mutex),
	}
}

// serviceLock returns the mutex guarding one service's record, so failures on
// independent services never serialize against each other.
func (h *HealthTracker) serviceLock(service string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.locks[service]; !ok {
		h.locks[service] = &sync.Mutex{}
	}
	return h.locks[service]
}

// load returns the working copy of a service record, hydrating it from Redis
// on first access. Callers must hold the service lock.
func (h *HealthTracker) load(ctx context.Context, service string) (*model.ServiceHealth, error) {
	h.mu.Lock()
	record, ok := h.services[service]
	h.mu.Unlock()
	if ok {
		return record, nil
	}

	data, err := h.redis.Get(ctx, healthKeyPrefix+service).Bytes()
	if err == nil {
		record = &model.ServiceHealth{}
		if err := json.Unmarshal(data, record); err != nil {
			return nil, faults.Wrap(faults.Internal, "corrupt health record", err)
		}
	} else if err == redis.Nil {
		degraded, unavailable := h.conf.ThresholdsFor(service)
		record = model.NewServiceHealth(service, degraded, unavailable, 0)
	} else {
		return nil, faults.Wrap(faults.Transient, "failed to load health record", err)
	}

	h.mu.Lock()
	h.services[service] = record
	h.mu.Unlock()
	return record, nil
}

func (h *HealthTracker) persist(ctx context.Context, record *model.ServiceHealth) error {
	data, err := json.Marshal(record)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to marshal health record", err)
	}
	if err := h.redis.Set(ctx, healthKeyPrefix+record.Name, data, 0).Err(); err != nil {
		return faults.Wrap(faults.Transient, "failed to persist health record", err)
	}
	return nil
}

// RecordFailure counts one failure against the service and returns its status
// after the failure. Crossing into unavailable raises a notification exactly
// once per outage.
func (h *HealthTracker) RecordFailure(ctx context.Context, service string, cause error) (model.ServiceStatus, error) {
	lock := h.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	record, err := h.load(ctx, service)
	if err != nil {
		return "", err
	}

	before := record.Status
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	record.RecordFailure(msg, time.Now())

	if record.Status != before {
		logrus.Warnf("service %s moved %s -> %s after %d consecutive failures", service, before, record.Status, record.ConsecutiveFailures)
	}
	if record.Status == model.StatusUnavailable && before != model.StatusUnavailable {
		h.notifier.Notify(
			fmt.Sprintf("Service %s unavailable", service),
			fmt.Sprintf("%d consecutive failures, last error: %s. Retryable actions will be queued for replay.", record.ConsecutiveFailures, record.LastError),
			notification.SeverityCritical,
		)
	}

	if err := h.persist(ctx, record); err != nil {
		return record.Status, err
	}
	return record.Status, nil
}

// RecordSuccess counts one success for the service. Recovery is gradual: the
// failure counter steps down one per success rather than resetting.
func (h *HealthTracker) RecordSuccess(ctx context.Context, service string) (model.ServiceStatus, error) {
	lock := h.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	record, err := h.load(ctx, service)
	if err != nil {
		return "", err
	}

	before := record.Status
	record.RecordSuccess(time.Now())
	if before == model.StatusUnavailable && record.Status != model.StatusUnavailable {
		logrus.Infof("service %s recovered to %s, queued actions eligible for replay", service, record.Status)
	}

	if err := h.persist(ctx, record); err != nil {
		return record.Status, err
	}
	return record.Status, nil
}

// Status returns the current health status of the service.
func (h *HealthTracker) Status(ctx context.Context, service string) (model.ServiceStatus, error) {
	lock := h.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	record, err := h.load(ctx, service)
	if err != nil {
		return "", err
	}
	return record.Status, nil
}

// IsAvailable reports whether actions may run against the service right now.
// Degraded still counts as available.
func (h *HealthTracker) IsAvailable(ctx context.Context, service string) (bool, error) {
	status, err := h.Status(ctx, service)
	if err != nil {
		return false, err
	}
	return status != model.StatusUnavailable, nil
}

// QueueAction defers an action to the service's FIFO for replay after
// recovery. Never-retry action kinds are refused with a SAFETY_BLOCKED fault:
// the caller must convert them to a manual approval request instead.
func (h *HealthTracker) QueueAction(ctx context.Context, action *model.QueuedAction) error {
	if action.Kind.NeverRetry() {
		return faults.Newf(faults.SafetyBlocked, "action kind %s must never be queued for automatic replay", action.Kind)
	}

	action.Status = model.QueuedPending
	if action.QueuedAt.IsZero() {
		action.QueuedAt = time.Now()
	}
	if action.ActionID == "" {
		action.ActionID = database.GenerateUUIDWithSuffix("act")
	}

	data, err := json.Marshal(action)
	if err != nil {
		return faults.Wrap(faults.Internal, "failed to marshal queued action", err)
	}
	if err := h.redis.RPush(ctx, queueKeyPrefix+action.Service, data).Err(); err != nil {
		return faults.Wrap(faults.Transient, "failed to queue action", err)
	}

	lock := h.serviceLock(action.Service)
	lock.Lock()
	defer lock.Unlock()
	record, err := h.load(ctx, action.Service)
	if err != nil {
		return err
	}
	record.QueuedActions++
	return h.persist(ctx, record)
}

// QueuedCount returns the number of actions waiting for replay on a service.
func (h *HealthTracker) QueuedCount(ctx context.Context, service string) (int64, error) {
	n, err := h.redis.LLen(ctx, queueKeyPrefix+service).Result()
	if err != nil {
		return 0, faults.Wrap(faults.Transient, "failed to read queue length", err)
	}
	return n, nil
}

// FailedCount returns the number of actions set aside after failing a replay.
func (h *HealthTracker) FailedCount(ctx context.Context, service string) (int64, error) {
	n, err := h.redis.LLen(ctx, failedKeyPrefix+service).Result()
	if err != nil {
		return 0, faults.Wrap(faults.Transient, "failed to read failed list length", err)
	}
	return n, nil
}

// Replay drains the service's queue in FIFO order, running each action
// through run. An action that fails during replay is marked failed and set
// aside on the failed list, so one poison action never blocks the rest of the
// drain and is never silently dropped. A distributed lock keeps two processes
// from replaying the same queue concurrently.
func (h *HealthTracker) Replay(ctx context.Context, service string, run func(model.QueuedAction) error) (int, error) {
	available, err := h.IsAvailable(ctx, service)
	if err != nil {
		return 0, err
	}
	if !available {
		return 0, faults.Newf(faults.Transient, "service %s is still unavailable", service)
	}

	locker := redlock.NewLocker(h.redis, "steward:replay-lock:"+service, database.GenerateUUIDWithSuffix("lock"))
	if err := locker.Lock(ctx, replayLockTTL); err != nil {
		return 0, faults.Wrap(faults.Transient, "replay already in progress", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release replay lock for %s: %v", service, err)
		}
	}()

	replayed := 0
	key := queueKeyPrefix + service
	for {
		data, err := h.redis.LPop(ctx, key).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return replayed, faults.Wrap(faults.Transient, "failed to pop queued action", err)
		}

		var action model.QueuedAction
		if err := json.Unmarshal(data, &action); err != nil {
			logrus.Errorf("dropping corrupt queued action on %s: %v", service, err)
			continue
		}

		if err := run(action); err != nil {
			action.Status = model.QueuedFailed
			action.Error = err.Error()
			if failed, mErr := json.Marshal(action); mErr == nil {
				if pErr := h.redis.RPush(ctx, failedKeyPrefix+service, failed).Err(); pErr != nil {
					logrus.Errorf("failed to set aside action %s: %v", action.ActionID, pErr)
				}
			}
			logrus.Warnf("replay of action %s on %s failed, set aside: %v", action.ActionID, service, err)
			continue
		}
		replayed++
	}

	lock := h.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()
	record, err := h.load(ctx, service)
	if err != nil {
		return replayed, err
	}
	remaining, err := h.QueuedCount(ctx, service)
	if err != nil {
		return replayed, err
	}
	record.QueuedActions = int(remaining)
	return replayed, h.persist(ctx, record)
}
