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

// Package ringbuf provides a fixed-capacity ring buffer of timestamps used
// for sliding-window counting. The supervisor uses it for restart budgets and
// the health tracker for failure windows; both share this one implementation.
package ringbuf

import (
	"sync"
	"time"
)

// Window is a bounded ring of event timestamps. Safe for concurrent use.
type Window struct {
	mu   sync.Mutex
	buf  []time.Time
	head int
	size int
}

// New returns a window holding at most capacity timestamps.
func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]time.Time, capacity)}
}

// Add records an event timestamp, evicting the oldest when full.
func (w *Window) Add(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[w.head] = t
	w.head = (w.head + 1) % len(w.buf)
	if w.size < len(w.buf) {
		w.size++
	}
}

// CountSince reports how many recorded events fall within the window ending
// at now and extending back by span.
func (w *Window) CountSince(now time.Time, span time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-span)
	n := 0
	for i := 0; i < w.size; i++ {
		if !w.at(i).Before(cutoff) {
			n++
		}
	}
	return n
}

// Len reports how many events the window currently holds.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Snapshot returns the recorded timestamps, oldest first.
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Time, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.at(i))
	}
	return out
}

// Restore seeds the window from persisted timestamps, oldest first. Used by
// the supervisor to rebuild restart history after its own restart.
func (w *Window) Restore(ts []time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.head, w.size = 0, 0
	for _, t := range ts {
		w.buf[w.head] = t
		w.head = (w.head + 1) % len(w.buf)
		if w.size < len(w.buf) {
			w.size++
		}
	}
}

func (w *Window) at(i int) time.Time {
	// index 0 is the oldest element
	start := (w.head - w.size + len(w.buf)) % len(w.buf)
	return w.buf[(start+i)%len(w.buf)]
}
