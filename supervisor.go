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
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/internal/ringbuf"
	"github.com/stewardhq/steward/model"
)

const workerKeyPrefix = "steward:supervisor:worker:"

// workerState is the supervisor's live handle on one managed process.
type workerState struct {
	proc      *model.WorkerProcess
	cmd       *exec.Cmd
	restarts  *ringbuf.Window
	escalated bool
}

// workerRecord is the persisted form of a worker's bookkeeping, written to
// Redis so a restarted supervisor reattaches to live PIDs instead of
// double-starting them.
type workerRecord struct {
	PID          int                `json:"pid"`
	RestartCount int                `json:"restart_count"`
	LastStarted  *time.Time         `json:"last_started,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	Restarts     []time.Time        `json:"restarts,omitempty"`
	Status       model.WorkerStatus `json:"status"`
}

// Supervisor keeps the configured worker processes running. Each worker has a
// restart budget counted over a sliding window; exhausting it stops automatic
// restarts and escalates exactly once.
type Supervisor struct {
	conf     *config.Configuration
	redis    redis.UniversalClient
	notifier Notifier
	auditor  AuditSink

	mu      sync.Mutex
	workers map[string]*workerState
	order   []string
	wake    chan struct{}
}

// NewSupervisor builds a supervisor for the configured workers and reattaches
// to any that are still alive from a previous run. A nil auditor disables
// audit writes.
func NewSupervisor(conf *config.Configuration, client redis.UniversalClient, notifier Notifier, auditor AuditSink) *Supervisor {
	s := &Supervisor{
		conf:     conf,
		redis:    client,
		notifier: notifier,
		auditor:  auditor,
		workers:  make(map[string]*workerState),
		wake:     make(chan struct{}, 1),
	}
	for _, wc := range conf.Supervisor.Workers {
		state := &workerState{
			proc: &model.WorkerProcess{
				Name:          wc.Name,
				Command:       wc.Command,
				Status:        model.WorkerStopped,
				Critical:      wc.Critical,
				MaxRestarts:   wc.MaxRestarts,
				RestartWindow: time.Duration(wc.RestartWindowSec) * time.Second,
			},
			restarts: ringbuf.New(wc.MaxRestarts),
		}
		s.workers[wc.Name] = state
		s.order = append(s.order, wc.Name)
		s.reattach(state)
	}
	return s
}

// reattach adopts a still-running process from a previous supervisor run. A
// recorded PID that is no longer alive just means the worker starts fresh.
func (s *Supervisor) reattach(state *workerState) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := s.redis.Get(ctx, workerKeyPrefix+state.proc.Name).Bytes()
	if err != nil {
		return
	}
	var rec workerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logrus.Warnf("discarding corrupt worker record for %s: %v", state.proc.Name, err)
		return
	}

	state.proc.RestartCount = rec.RestartCount
	state.proc.LastStarted = rec.LastStarted
	state.proc.LastError = rec.LastError
	state.restarts.Restore(rec.Restarts)

	if rec.PID > 0 {
		alive, err := process.PidExists(int32(rec.PID))
		if err == nil && alive {
			state.proc.PID = rec.PID
			state.proc.Status = model.WorkerRunning
			logrus.Infof("reattached to worker %s (pid %d)", state.proc.Name, rec.PID)
		}
	}
}

func (s *Supervisor) persist(ctx context.Context, state *workerState) {
	rec := workerRecord{
		PID:          state.proc.PID,
		RestartCount: state.proc.RestartCount,
		LastStarted:  state.proc.LastStarted,
		LastError:    state.proc.LastError,
		Restarts:     state.restarts.Snapshot(),
		Status:       state.proc.Status,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logrus.Errorf("failed to marshal worker record for %s: %v", state.proc.Name, err)
		return
	}
	if err := s.redis.Set(ctx, workerKeyPrefix+state.proc.Name, data, 0).Err(); err != nil {
		logrus.Warnf("failed to persist worker record for %s: %v", state.proc.Name, err)
	}
}

// Start launches one worker by name.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.workers[name]
	if !ok {
		return faults.Newf(faults.NotFound, "no worker named %s", name)
	}
	return s.startLocked(ctx, state)
}

func (s *Supervisor) startLocked(ctx context.Context, state *workerState) error {
	if state.proc.Status == model.WorkerRunning {
		return nil
	}
	state.proc.Status = model.WorkerStarting

	cmd := exec.Command(state.proc.Command[0], state.proc.Command[1:]...)
	if err := cmd.Start(); err != nil {
		state.proc.Status = model.WorkerDead
		state.proc.LastError = err.Error()
		s.persist(ctx, state)
		return faults.Wrap(faults.Transient, fmt.Sprintf("failed to start worker %s", state.proc.Name), err)
	}

	now := time.Now()
	state.cmd = cmd
	state.proc.PID = cmd.Process.Pid
	state.proc.Status = model.WorkerRunning
	state.proc.LastStarted = &now
	state.proc.LastError = ""

	// Reap the child when it exits so it never lingers as a zombie.
	go func() {
		_ = cmd.Wait()
	}()

	logrus.Infof("started worker %s (pid %d)", state.proc.Name, state.proc.PID)
	s.persist(ctx, state)
	return nil
}

// StartAll launches every configured worker in declaration order.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		if err := s.startLocked(ctx, s.workers[name]); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates one worker: SIGTERM first, then SIGKILL after the grace
// period.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.workers[name]
	if !ok {
		return faults.Newf(faults.NotFound, "no worker named %s", name)
	}
	return s.stopLocked(ctx, state)
}

func (s *Supervisor) stopLocked(ctx context.Context, state *workerState) error {
	if state.proc.Status != model.WorkerRunning || state.proc.PID == 0 {
		return nil
	}
	state.proc.Status = model.WorkerStopping
	pid := state.proc.PID

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		logrus.Warnf("SIGTERM to worker %s (pid %d) failed: %v", state.proc.Name, pid, err)
	}

	grace := time.Duration(s.conf.Supervisor.GraceSec) * time.Second
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		alive, err := process.PidExists(int32(pid))
		if err == nil && !alive {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	if alive, err := process.PidExists(int32(pid)); err == nil && alive {
		logrus.Warnf("worker %s (pid %d) ignored SIGTERM, sending SIGKILL", state.proc.Name, pid)
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
			logrus.Errorf("SIGKILL to worker %s (pid %d) failed: %v", state.proc.Name, pid, err)
		}
	}

	state.proc.Status = model.WorkerStopped
	state.proc.PID = 0
	state.cmd = nil
	s.persist(ctx, state)
	logrus.Infof("stopped worker %s", state.proc.Name)
	return nil
}

// StopAll stops every worker in reverse declaration order, so downstream
// consumers go down before the producers feeding them.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if err := s.stopLocked(ctx, s.workers[s.order[i]]); err != nil {
			logrus.Errorf("failed to stop worker %s: %v", s.order[i], err)
		}
	}
}

// CheckAndRestart probes every worker and restarts the dead ones within their
// restart budget. A worker over budget is left down and escalated exactly
// once per outage.
func (s *Supervisor) CheckAndRestart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		state := s.workers[name]
		if state.proc.Status != model.WorkerRunning {
			continue
		}

		alive, err := process.PidExists(int32(state.proc.PID))
		if err != nil {
			logrus.Warnf("failed to probe worker %s (pid %d): %v", name, state.proc.PID, err)
			continue
		}
		if alive {
			continue
		}

		state.proc.Status = model.WorkerDead
		logrus.Warnf("worker %s (pid %d) died", name, state.proc.PID)

		now := time.Now()
		recent := state.restarts.CountSince(now, state.proc.RestartWindow)
		if recent >= state.proc.MaxRestarts {
			if !state.escalated {
				state.escalated = true
				s.notifier.Notify(
					fmt.Sprintf("Worker %s restart budget exhausted", name),
					fmt.Sprintf("%d restarts within %s. Automatic restarts suspended; manual intervention required.", recent, state.proc.RestartWindow),
					notification.SeverityCritical,
				)
			}
			s.persist(ctx, state)
			continue
		}

		state.restarts.Add(now)
		state.proc.RestartCount++
		state.escalated = false
		if err := s.startLocked(ctx, state); err != nil {
			logrus.Errorf("failed to restart worker %s: %v", name, err)
			continue
		}

		if state.proc.Critical || state.proc.RestartCount >= 3 {
			s.notifier.Notify(
				fmt.Sprintf("Worker %s restarted", name),
				fmt.Sprintf("Restart %d (restart %d of %d within %s).", state.proc.RestartCount, recent+1, state.proc.MaxRestarts, state.proc.RestartWindow),
				notification.SeverityWarning,
			)
		}
	}
}

// Run starts all workers and health-checks them on the configured interval
// until the context is cancelled, then stops them all.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.StartAll(ctx); err != nil {
		return err
	}

	interval := time.Duration(s.conf.Supervisor.CheckIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutdown gets a fresh context, the run context is already dead.
			stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Duration(s.conf.Supervisor.GraceSec)*time.Second)
			s.StopAll(stopCtx)
			s.audit(stopCtx, &model.AuditEntry{
				ActionType: "supervisor_shutdown",
				Actor:      "steward",
				Parameters: map[string]string{"workers": fmt.Sprintf("%d", len(s.order))},
				Result:     model.ResultSuccess,
			})
			cancel()
			return ctx.Err()
		case <-s.wake:
			s.CheckAndRestart(ctx)
		case <-ticker.C:
			s.CheckAndRestart(ctx)
		}
	}
}

// audit appends an entry through the configured sink. Like the rest of the
// audit trail it is best effort: a write failure lands in the process log.
func (s *Supervisor) audit(ctx context.Context, entry *model.AuditEntry) {
	if s.auditor == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := s.auditor.RecordAuditEntry(ctx, entry); err != nil {
		logrus.Errorf("failed to append audit entry %s: %v", entry.ActionType, err)
	}
}

// Poke asks a running supervisor loop to health-check immediately.
func (s *Supervisor) Poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Statuses returns a snapshot of every worker's bookkeeping record in
// declaration order.
func (s *Supervisor) Statuses() []model.WorkerProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.WorkerProcess, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.workers[name].proc)
	}
	return out
}
