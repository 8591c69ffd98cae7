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

// Package steward is the reliability and lifecycle control plane for
// unattended automation: it moves work items through a gated state machine,
// tracks the health of the external services actions land on, defers
// retryable actions during outages, and records every attempted side effect
// in an append-only audit log.
package steward

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/database"
	redis_db "github.com/stewardhq/steward/internal/redis-db"
)

// Steward is the main struct wiring the control plane together.
type Steward struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	queue      expiryScheduler
	health     *HealthTracker
	planner    Planner
	executors  *ExecutorRegistry
	notifier   Notifier
}

// NewSteward initializes a new instance of Steward with the provided database
// datasource. It fetches the configuration and initializes the Redis client,
// health tracker, task queue, and executor registry.
func NewSteward(db database.IDataSource, planner Planner) (*Steward, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	notifier := notifyFunc{}
	newQueue := NewQueue(configuration)
	health := NewHealthTracker(redisClient.Client(), configuration, notifier)

	newSteward := &Steward{
		datasource: db,
		redis:      redisClient.Client(),
		queue:      newQueue,
		health:     health,
		planner:    planner,
		executors:  NewExecutorRegistry(),
		notifier:   notifier,
	}
	return newSteward, nil
}

// Executors exposes the registry so callers can bind step executors before
// processing begins.
func (s *Steward) Executors() *ExecutorRegistry {
	return s.executors
}

// Health exposes the service health tracker.
func (s *Steward) Health() *HealthTracker {
	return s.health
}

// Datasource exposes the backing store, for components like the supervisor
// that write their own audit entries.
func (s *Steward) Datasource() database.IDataSource {
	return s.datasource
}
