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
	"time"
)

// ServiceStatus is the health state of an external dependency.
type ServiceStatus string

const (
	StatusHealthy     ServiceStatus = "healthy"
	StatusDegraded    ServiceStatus = "degraded"
	StatusUnavailable ServiceStatus = "unavailable"
)

// ServiceHealth tracks failures of a single named external dependency.
// Mutated only by the health tracker; read by any component issuing external
// calls.
type ServiceHealth struct {
	Name                 string        `json:"name"`
	Status               ServiceStatus `json:"status"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	LastError            string        `json:"last_error,omitempty"`
	LastFailure          *time.Time    `json:"last_failure,omitempty"`
	LastSuccess          *time.Time    `json:"last_success,omitempty"`
	QueuedActions        int           `json:"queued_actions"`
	DegradedThreshold    int           `json:"degraded_threshold"`
	UnavailableThreshold int           `json:"unavailable_threshold"`
	RecoveryWindow       time.Duration `json:"recovery_window"`
}

// NewServiceHealth returns a healthy record with the given thresholds.
func NewServiceHealth(name string, degraded, unavailable int, recovery time.Duration) *ServiceHealth {
	return &ServiceHealth{
		Name:                 name,
		Status:               StatusHealthy,
		DegradedThreshold:    degraded,
		UnavailableThreshold: unavailable,
		RecoveryWindow:       recovery,
	}
}

// RecordFailure increments the consecutive failure counter and moves the
// status across the degraded and unavailable thresholds.
func (s *ServiceHealth) RecordFailure(errMsg string, now time.Time) {
	s.ConsecutiveFailures++
	s.LastError = errMsg
	s.LastFailure = &now

	switch {
	case s.ConsecutiveFailures >= s.UnavailableThreshold:
		s.Status = StatusUnavailable
	case s.ConsecutiveFailures >= s.DegradedThreshold:
		s.Status = StatusDegraded
	}
}

// RecordSuccess decrements the failure counter by one rather than resetting
// it, so a single success during an outage does not flap the service back to
// healthy. The status is recomputed from the counter against the same
// thresholds the failure path uses.
func (s *ServiceHealth) RecordSuccess(now time.Time) {
	s.LastSuccess = &now
	if s.ConsecutiveFailures > 0 {
		s.ConsecutiveFailures--
	}
	switch {
	case s.ConsecutiveFailures >= s.UnavailableThreshold:
		s.Status = StatusUnavailable
	case s.ConsecutiveFailures >= s.DegradedThreshold:
		s.Status = StatusDegraded
	default:
		s.Status = StatusHealthy
	}
}

// Available reports whether callers may invoke the service directly. Degraded
// services remain available; only unavailable ones are gated.
func (s *ServiceHealth) Available() bool {
	return s.Status != StatusUnavailable
}

// QueuedActionStatus is the replay state of a deferred action.
type QueuedActionStatus string

const (
	QueuedPending   QueuedActionStatus = "pending"
	QueuedCompleted QueuedActionStatus = "completed"
	QueuedFailed    QueuedActionStatus = "failed"
)

// QueuedAction is a deferred side effect persisted to a per-service FIFO
// while the service is unavailable, replayed in order on recovery. Never
// created for never-retry action kinds.
type QueuedAction struct {
	ActionID string             `json:"action_id"`
	Service  string             `json:"service"`
	Kind     ActionKind         `json:"action_kind"`
	Target   string             `json:"target,omitempty"`
	Params   map[string]string  `json:"params,omitempty"`
	QueuedAt time.Time          `json:"queued_at"`
	Status   QueuedActionStatus `json:"status"`
	Error    string             `json:"error,omitempty"`
}
