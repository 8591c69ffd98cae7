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

// Package faults defines the typed error taxonomy shared by the retry,
// health, and state-machine layers. Failures carry a machine-readable kind so
// no code path has to classify errors by string matching, and nothing is
// silently absorbed.
package faults

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Transient errors (network, timeout, rate limit) may succeed on retry.
	Transient Kind = "TRANSIENT"
	// Permanent errors (auth, bad input) will not benefit from retrying.
	Permanent Kind = "PERMANENT"
	// RetryExhausted means all retry attempts failed.
	RetryExhausted Kind = "RETRY_EXHAUSTED"
	// DuplicateIgnored is not a failure: an idempotent ingest no-op.
	DuplicateIgnored Kind = "DUPLICATE_IGNORED"
	// SafetyBlocked means an attempt to auto-queue a never-retry action kind
	// was refused and converted to a manual approval request.
	SafetyBlocked Kind = "SAFETY_BLOCKED"
	// NotPending means a check-and-set transition found the approval request
	// already resolved or expired.
	NotPending Kind = "NOT_PENDING"
	NotFound   Kind = "NOT_FOUND"
	Internal   Kind = "INTERNAL"
)

// Fault is a typed error with a kind and optional details.
type Fault struct {
	Code    Kind        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// New creates a Fault with the given kind and message.
func New(code Kind, message string) Fault {
	return Fault{Code: code, Message: message}
}

// Wrap creates a Fault wrapping an underlying error.
func Wrap(code Kind, message string, err error) Fault {
	return Fault{Code: code, Message: message, Err: err}
}

// Newf creates a Fault with a formatted message.
func Newf(code Kind, format string, args ...interface{}) Fault {
	return Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error, or Internal for untyped errors.
func KindOf(err error) Kind {
	var f Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return Internal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, code Kind) bool {
	var f Fault
	return errors.As(err, &f) && f.Code == code
}

// Retryable reports whether err should be retried. Only transient faults
// qualify; untyped errors are treated as permanent so an unclassified failure
// never loops.
func Retryable(err error) bool {
	return Is(err, Transient)
}

// Exhausted wraps the last error of a failed retry budget, recording how many
// attempts were made.
func Exhausted(lastErr error, attempts int) Fault {
	return Fault{
		Code:    RetryExhausted,
		Message: fmt.Sprintf("all %d attempts exhausted. Last error: %v", attempts, lastErr),
		Details: attempts,
		Err:     lastErr,
	}
}

// Attempts returns the attempt count recorded on a RetryExhausted fault, or
// zero for any other error.
func Attempts(err error) int {
	var f Fault
	if errors.As(err, &f) && f.Code == RetryExhausted {
		if n, ok := f.Details.(int); ok {
			return n
		}
	}
	return 0
}
