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

import "time"

// WorkerStatus is the supervisor's view of a managed producer process.
type WorkerStatus string

const (
	WorkerStopped  WorkerStatus = "stopped"
	WorkerStarting WorkerStatus = "starting"
	WorkerRunning  WorkerStatus = "running"
	WorkerDead     WorkerStatus = "dead"
	WorkerStopping WorkerStatus = "stopping"
)

// WorkerProcess is the supervisor's bookkeeping record for one long-running
// producer process. Created at supervisor start, mutated on health-check
// cycles, persisted so a restarted supervisor can reattach to live PIDs.
type WorkerProcess struct {
	Name          string        `json:"name"`
	Command       []string      `json:"command"`
	PID           int           `json:"pid,omitempty"`
	Status        WorkerStatus  `json:"status"`
	RestartCount  int           `json:"restart_count"`
	LastStarted   *time.Time    `json:"last_started,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Critical      bool          `json:"critical"`
	MaxRestarts   int           `json:"max_restarts"`
	RestartWindow time.Duration `json:"restart_window"`
}
