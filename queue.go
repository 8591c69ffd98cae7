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
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stewardhq/steward/config"
	redis_db "github.com/stewardhq/steward/internal/redis-db"
)

// Queue schedules deferred tasks on Redis. Its one job today is delivering
// the approval-expiry task at the moment a pending request times out, so the
// sweeper is a safety net rather than the primary expiry path.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// expiryScheduler is the slice of Queue the lifecycle layer needs.
type expiryScheduler interface {
	queueApprovalExpiry(approvalID string, expiresAt time.Time) error
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueApprovalExpiry enqueues a task that fires when the approval request
// reaches its expiry time. The task id is the approval id, so re-requesting
// approval for the same request never schedules a duplicate expiry.
func (q *Queue) queueApprovalExpiry(approvalID string, expiresAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	IPayload, err := json.Marshal(approvalID)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(approvalID),
		asynq.Queue(cfg.Queue.ApprovalExpiryQueue),
		asynq.ProcessIn(time.Until(expiresAt)),
	}
	task := asynq.NewTask(cfg.Queue.ApprovalExpiryQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued approval expiry: %+v", approvalID)
	return nil
}
