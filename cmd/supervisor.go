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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward"
	redis_db "github.com/stewardhq/steward/internal/redis-db"
)

// supervisorCommands defines the "supervisor" command that keeps the worker
// processes alive and runs the approval sweeper.
func supervisorCommands(b *stewardInstance) *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "run the process supervisor",
		Run: func(cmd *cobra.Command, args []string) {
			redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", b.cnf.Redis.Dns)})
			if err != nil {
				logrus.Fatalf("failed to connect to redis: %v", err)
			}

			sup := steward.NewSupervisor(b.cnf, redisClient.Client(), steward.DefaultNotifier(), b.steward.Datasource())

			if showStatus {
				printWorkerStatus(sup)
				return
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go runSweeper(ctx, b)

			logrus.Infof("supervisor starting %d workers", len(b.cnf.Supervisor.Workers))
			if err := sup.Run(ctx); err != nil && err != context.Canceled {
				logrus.Fatalf("supervisor stopped: %v", err)
			}
			logrus.Info("supervisor shut down")
		},
	}

	cmd.Flags().BoolVar(&showStatus, "status", false, "print worker status and exit")
	return cmd
}

// runSweeper periodically expires pending approval requests past their
// deadline, as a safety net behind the scheduled expiry tasks, and archives
// work items that have settled in a terminal decision state.
func runSweeper(ctx context.Context, b *stewardInstance) {
	interval := time.Duration(b.cnf.Approval.SweepIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := b.steward.SweepExpired(ctx)
			if err != nil {
				logrus.Errorf("approval sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				logrus.Infof("approval sweep expired %d requests", expired)
			}

			archived, err := b.steward.ArchiveSettled(ctx)
			if err != nil {
				logrus.Errorf("archive sweep failed: %v", err)
				continue
			}
			if archived > 0 {
				logrus.Infof("archived %d settled work items", archived)
			}
		}
	}
}

func printWorkerStatus(sup *steward.Supervisor) {
	for _, w := range sup.Statuses() {
		line := fmt.Sprintf("%-20s %-10s pid=%-8d restarts=%d", w.Name, w.Status, w.PID, w.RestartCount)
		if w.LastError != "" {
			line += " last_error=" + w.LastError
		}
		fmt.Println(line)
	}
}
