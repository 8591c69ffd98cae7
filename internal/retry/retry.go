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

// Package retry wraps a single fallible operation with bounded
// exponential-backoff retry. The backoff sleep is the only intentional
// blocking wait in the system and honors context cancellation.
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/internal/faults"
)

// Executor retries an operation with exponential backoff. It is a pure
// utility with no shared state across calls except the attempt history kept
// for the caller's diagnostics.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	mu      sync.Mutex
	history []Attempt
}

// Attempt records one attempt of an operation, success or failure.
type Attempt struct {
	Op        string        `json:"op"`
	Attempt   int           `json:"attempt"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Permanent bool          `json:"permanent,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Stats summarizes the executor's attempt history.
type Stats struct {
	TotalAttempts int     `json:"total_attempts"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
}

// NewExecutor returns an executor with the given budget. Zero values fall
// back to 3 attempts, 1s base delay, 60s cap.
func NewExecutor(maxAttempts int, baseDelay, maxDelay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	return &Executor{MaxAttempts: maxAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Execute runs op, retrying on errors the predicate classifies as retryable.
// The delay before attempt n+1 is min(BaseDelay * 2^(n-1), MaxDelay). A
// non-retryable error propagates immediately without sleeping. Once
// MaxAttempts have failed the caller gets a RETRY_EXHAUSTED fault carrying
// the last error and the attempt count. Cancelling ctx aborts any pending
// backoff sleep.
func (e *Executor) Execute(ctx context.Context, name string, op func() error, retryable func(error) bool) error {
	if retryable == nil {
		retryable = faults.Retryable
	}

	policy := e.newPolicy()
	attempt := 0

	wrapped := func() error {
		attempt++
		start := time.Now()
		err := op()
		rec := Attempt{
			Op:        name,
			Attempt:   attempt,
			Success:   err == nil,
			Duration:  time.Since(start),
			Timestamp: start,
		}
		if err != nil {
			rec.Error = err.Error()
			rec.Permanent = !retryable(err)
		}
		e.record(rec)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			logrus.Errorf("[%s] permanent error: %v", name, err)
			return backoff.Permanent(err)
		}
		if attempt >= e.MaxAttempts {
			return backoff.Permanent(faults.Exhausted(err, attempt))
		}
		logrus.Warnf("[%s] attempt %d/%d failed: %v", name, attempt, e.MaxAttempts, err)
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && faults.KindOf(err) != faults.RetryExhausted {
		return faults.Wrap(faults.Transient, "retry cancelled", ctx.Err())
	}
	return err
}

// newPolicy builds the deterministic backoff schedule: the delay before
// attempt n+1 is min(BaseDelay * 2^(n-1), MaxDelay), with no jitter.
func (e *Executor) newPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.BaseDelay
	policy.MaxInterval = e.MaxDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

func (e *Executor) record(a Attempt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, a)
}

// History returns a copy of the recorded attempts.
func (e *Executor) History() []Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Attempt, len(e.history))
	copy(out, e.history)
	return out
}

// GetStats aggregates the attempt history.
func (e *Executor) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{TotalAttempts: len(e.history)}
	for _, a := range e.history {
		if a.Success {
			s.Successes++
		} else {
			s.Failures++
		}
	}
	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.TotalAttempts) * 100
	}
	return s
}
