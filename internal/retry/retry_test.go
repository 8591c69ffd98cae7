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

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/internal/faults"
)

func fastExecutor(maxAttempts int) *Executor {
	return NewExecutor(maxAttempts, time.Millisecond, 5*time.Millisecond)
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	e := fastExecutor(3)
	calls := 0

	err := e.Execute(context.Background(), "op", func() error {
		calls++
		return nil
	}, faults.Retryable)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	stats := e.GetStats()
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	e := fastExecutor(3)
	calls := 0

	err := e.Execute(context.Background(), "op", func() error {
		calls++
		if calls < 3 {
			return faults.New(faults.Transient, "connection reset")
		}
		return nil
	}, faults.Retryable)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	history := e.History()
	require.Len(t, history, 3)
	assert.False(t, history[0].Success)
	assert.False(t, history[1].Success)
	assert.True(t, history[2].Success)
}

func TestExecuteExhaustsBudget(t *testing.T) {
	e := fastExecutor(3)
	calls := 0

	err := e.Execute(context.Background(), "op", func() error {
		calls++
		return faults.New(faults.Transient, "still down")
	}, faults.Retryable)

	require.Error(t, err)
	assert.Equal(t, 3, calls, "stops at the attempt budget")
	assert.Equal(t, faults.RetryExhausted, faults.KindOf(err))
	assert.Equal(t, 3, faults.Attempts(err))
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	e := fastExecutor(5)
	calls := 0
	boom := faults.New(faults.Permanent, "bad credentials")

	err := e.Execute(context.Background(), "op", func() error {
		calls++
		return boom
	}, faults.Retryable)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors never retry")
	assert.Equal(t, faults.Permanent, faults.KindOf(err))

	history := e.History()
	require.Len(t, history, 1)
	assert.True(t, history[0].Permanent)
}

func TestExecuteUntypedErrorTreatedAsPermanent(t *testing.T) {
	e := fastExecutor(5)
	calls := 0

	err := e.Execute(context.Background(), "op", func() error {
		calls++
		return assert.AnError
	}, faults.Retryable)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "unclassified failures must not loop")
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	e := NewExecutor(10, 50*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(75 * time.Millisecond)
		cancel()
	}()

	err := e.Execute(ctx, "op", func() error {
		calls++
		return faults.New(faults.Transient, "still down")
	}, faults.Retryable)

	require.Error(t, err)
	assert.Less(t, calls, 10, "cancellation aborts the backoff loop early")
}

func TestBackoffDelayDoublesUntilCapped(t *testing.T) {
	e := NewExecutor(5, time.Second, 4*time.Second)
	policy := e.newPolicy()

	// min(base * 2^(n-1), max): 1s, 2s, 4s, then pinned at the cap
	assert.Equal(t, time.Second, policy.NextBackOff())
	assert.Equal(t, 2*time.Second, policy.NextBackOff())
	assert.Equal(t, 4*time.Second, policy.NextBackOff())
	assert.Equal(t, 4*time.Second, policy.NextBackOff())
}

func TestExecuteSleepsBetweenAttempts(t *testing.T) {
	e := NewExecutor(3, 20*time.Millisecond, 60*time.Millisecond)

	start := time.Now()
	err := e.Execute(context.Background(), "op", func() error {
		return faults.New(faults.Transient, "still down")
	}, faults.Retryable)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, faults.RetryExhausted, faults.KindOf(err))
	// Two sleeps between three attempts: 20ms then 40ms
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestNewExecutorDefaults(t *testing.T) {
	e := NewExecutor(0, 0, 0)
	assert.Equal(t, 3, e.MaxAttempts)
	assert.Equal(t, time.Second, e.BaseDelay)
	assert.Equal(t, 60*time.Second, e.MaxDelay)
}
