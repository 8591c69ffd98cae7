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

package ringbuf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowCountSince(t *testing.T) {
	w := New(5)
	now := time.Now()

	w.Add(now.Add(-10 * time.Minute))
	w.Add(now.Add(-3 * time.Minute))
	w.Add(now.Add(-1 * time.Minute))

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 2, w.CountSince(now, 5*time.Minute))
	assert.Equal(t, 3, w.CountSince(now, time.Hour))
	assert.Equal(t, 0, w.CountSince(now, 30*time.Second))
}

func TestWindowEvictsOldestWhenFull(t *testing.T) {
	w := New(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		w.Add(base.Add(time.Duration(i) * time.Minute))
	}

	assert.Equal(t, 3, w.Len())
	snap := w.Snapshot()
	assert.Equal(t, []time.Time{
		base.Add(2 * time.Minute),
		base.Add(3 * time.Minute),
		base.Add(4 * time.Minute),
	}, snap)
}

func TestWindowSnapshotRestoreRoundTrip(t *testing.T) {
	w := New(4)
	base := time.Now()
	for i := 0; i < 3; i++ {
		w.Add(base.Add(time.Duration(i) * time.Second))
	}

	restored := New(4)
	restored.Restore(w.Snapshot())

	assert.Equal(t, w.Snapshot(), restored.Snapshot())
	assert.Equal(t, w.Len(), restored.Len())
}

func TestWindowRestoreOverwritesPriorState(t *testing.T) {
	w := New(3)
	base := time.Now()
	w.Add(base.Add(-time.Hour))
	w.Add(base.Add(-time.Hour))

	w.Restore([]time.Time{base})
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, []time.Time{base}, w.Snapshot())
}

func TestWindowZeroCapacity(t *testing.T) {
	w := New(0)
	now := time.Now()
	w.Add(now)
	w.Add(now.Add(time.Second))

	// Capacity clamps to one slot holding the newest event
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, []time.Time{now.Add(time.Second)}, w.Snapshot())
}
