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
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/internal/faults"
	redis_db "github.com/stewardhq/steward/internal/redis-db"
	"github.com/stewardhq/steward/model"
)

// processApprovalExpiry expires one approval request when its scheduled task
// fires. Losing the race to a human decision is the good outcome, so
// NOT_PENDING is swallowed rather than retried.
func (b *stewardInstance) processApprovalExpiry(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("steward.approvals.worker").Start(ctx, "Expire Approval From Redis Queue")
	defer span.End()

	var approvalID string
	if err := json.Unmarshal(t.Payload(), &approvalID); err != nil {
		logrus.Error(err)
		return err
	}

	err := b.steward.ExpireOne(ctx, approvalID)
	if err != nil {
		if faults.Is(err, faults.NotPending) {
			log.Printf(" [*] Approval %s already resolved, nothing to expire", approvalID)
			return nil
		}
		return err
	}

	logrus.Printf(" [*] Approval Request Expired %s", approvalID)
	return nil
}

// runProcessingLoop plans freshly ingested items and executes everything
// eligible, in priority order, until the context ends.
func (b *stewardInstance) runProcessingLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ingested, err := b.steward.ListByState(ctx, model.StateIngested, 50)
		if err != nil {
			logrus.Errorf("failed to list ingested items: %v", err)
			continue
		}
		for _, item := range ingested {
			if _, err := b.steward.PlanItem(ctx, item.WorkItemID); err != nil {
				logrus.Errorf("failed to plan %s: %v", item.WorkItemID, err)
			}
		}

		pending, err := b.steward.NextPending(ctx, 50)
		if err != nil {
			logrus.Errorf("failed to list pending items: %v", err)
			continue
		}
		for _, item := range pending {
			if err := b.steward.ExecuteItem(ctx, item.WorkItemID); err != nil {
				logrus.Warnf("execution of %s did not complete: %v", item.WorkItemID, err)
			}
		}
	}
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.ApprovalExpiryQueue] = 3
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *stewardInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.ApprovalExpiryQueue, b.processApprovalExpiry)
}

// workerCommands defines the "workers" command: the asynq server handling
// scheduled approval expiry, plus the plan-and-execute loop.
func workerCommands(b *stewardInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the processing workers",
		Run: func(cmd *cobra.Command, args []string) {
			queues := initializeQueues()
			srv, err := initializeWorkerServer(b.cnf, queues)
			if err != nil {
				logrus.Fatalf("failed to initialize worker server: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go b.runProcessingLoop(ctx)

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				logrus.Fatalf("could not run worker server: %v", err)
			}
		},
	}
	return cmd
}
