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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_APPROVAL_TIMEOUT_HOURS  = 24
	DEFAULT_DEGRADED_THRESHOLD      = 2
	DEFAULT_UNAVAILABLE_THRESHOLD   = 5
	DEFAULT_RETRY_MAX_ATTEMPTS      = 3
	DEFAULT_AUDIT_RETENTION_DAYS    = 90
	DEFAULT_DEDUP_MAX_ENTRIES       = 10000
	DEFAULT_SUPERVISOR_INTERVAL_SEC = 60
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"STEWARD_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"STEWARD_REDIS_DNS"`
}

type QueueConfig struct {
	ApprovalExpiryQueue string `json:"approval_expiry_queue" envconfig:"STEWARD_QUEUE_APPROVAL_EXPIRY"`
}

// ApprovalConfig controls the human-approval gate. TimeoutHours bounds how
// long a pending request may wait for a decision before it expires.
type ApprovalConfig struct {
	TimeoutHours     int `json:"timeout_hours" envconfig:"STEWARD_APPROVAL_TIMEOUT_HOURS"`
	SweepIntervalSec int `json:"sweep_interval_sec" envconfig:"STEWARD_APPROVAL_SWEEP_INTERVAL_SEC"`
}

type DedupConfig struct {
	MaxEntries int `json:"max_entries" envconfig:"STEWARD_DEDUP_MAX_ENTRIES"`
}

type RetryConfig struct {
	MaxAttempts  int `json:"max_attempts" envconfig:"STEWARD_RETRY_MAX_ATTEMPTS"`
	BaseDelaySec int `json:"base_delay_sec" envconfig:"STEWARD_RETRY_BASE_DELAY_SEC"`
	MaxDelaySec  int `json:"max_delay_sec" envconfig:"STEWARD_RETRY_MAX_DELAY_SEC"`
}

// ServiceHealthOverride lets one service carry thresholds different from the
// global defaults, keyed by service name in the Health config.
type ServiceHealthOverride struct {
	DegradedThreshold    int `json:"degraded_threshold"`
	UnavailableThreshold int `json:"unavailable_threshold"`
}

type HealthConfig struct {
	DegradedThreshold    int                              `json:"degraded_threshold" envconfig:"STEWARD_HEALTH_DEGRADED_THRESHOLD"`
	UnavailableThreshold int                              `json:"unavailable_threshold" envconfig:"STEWARD_HEALTH_UNAVAILABLE_THRESHOLD"`
	Services             map[string]ServiceHealthOverride `json:"services"`
}

// WorkerConfig describes one supervised process.
type WorkerConfig struct {
	Name             string   `json:"name"`
	Command          []string `json:"command"`
	Critical         bool     `json:"critical"`
	MaxRestarts      int      `json:"max_restarts"`
	RestartWindowSec int      `json:"restart_window_sec"`
}

type SupervisorConfig struct {
	CheckIntervalSec int            `json:"check_interval_sec" envconfig:"STEWARD_SUPERVISOR_CHECK_INTERVAL_SEC"`
	GraceSec         int            `json:"grace_sec" envconfig:"STEWARD_SUPERVISOR_GRACE_SEC"`
	Workers          []WorkerConfig `json:"workers"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// DispatchConfig is the outbound HTTP endpoint executing plan steps. Each
// step is POSTed as JSON; the receiver performs the actual side effect.
type DispatchConfig struct {
	Url     string            `json:"url" envconfig:"STEWARD_DISPATCH_URL"`
	Headers map[string]string `json:"headers"`
}

type AuditConfig struct {
	RetentionDays int `json:"retention_days" envconfig:"STEWARD_AUDIT_RETENTION_DAYS"`
}

type ProducerConfig struct {
	SpoolDir        string `json:"spool_dir" envconfig:"STEWARD_PRODUCER_SPOOL_DIR"`
	PollIntervalSec int    `json:"poll_interval_sec" envconfig:"STEWARD_PRODUCER_POLL_INTERVAL_SEC"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"STEWARD_PROJECT_NAME"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Approval     ApprovalConfig   `json:"approval"`
	Dedup        DedupConfig      `json:"dedup"`
	Retry        RetryConfig      `json:"retry"`
	Health       HealthConfig     `json:"health"`
	Supervisor   SupervisorConfig `json:"supervisor"`
	Notification Notification     `json:"notification"`
	Dispatch     DispatchConfig   `json:"dispatch"`
	Audit        AuditConfig      `json:"audit"`
	Producer     ProducerConfig   `json:"producer"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("steward", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called steward.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Steward"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.ApprovalExpiryQueue == "" {
		cnf.Queue.ApprovalExpiryQueue = "approval_expiry"
	}

	if cnf.Approval.TimeoutHours <= 0 {
		cnf.Approval.TimeoutHours = DEFAULT_APPROVAL_TIMEOUT_HOURS
	}
	if cnf.Approval.SweepIntervalSec <= 0 {
		cnf.Approval.SweepIntervalSec = 300
	}

	if cnf.Dedup.MaxEntries <= 0 {
		cnf.Dedup.MaxEntries = DEFAULT_DEDUP_MAX_ENTRIES
	}

	if cnf.Retry.MaxAttempts <= 0 {
		cnf.Retry.MaxAttempts = DEFAULT_RETRY_MAX_ATTEMPTS
	}
	if cnf.Retry.BaseDelaySec <= 0 {
		cnf.Retry.BaseDelaySec = 1
	}
	if cnf.Retry.MaxDelaySec <= 0 {
		cnf.Retry.MaxDelaySec = 60
	}
	if cnf.Retry.MaxDelaySec < cnf.Retry.BaseDelaySec {
		return fmt.Errorf("retry max delay (%ds) cannot be below base delay (%ds)", cnf.Retry.MaxDelaySec, cnf.Retry.BaseDelaySec)
	}

	if cnf.Health.DegradedThreshold <= 0 {
		cnf.Health.DegradedThreshold = DEFAULT_DEGRADED_THRESHOLD
	}
	if cnf.Health.UnavailableThreshold <= 0 {
		cnf.Health.UnavailableThreshold = DEFAULT_UNAVAILABLE_THRESHOLD
	}
	if cnf.Health.UnavailableThreshold <= cnf.Health.DegradedThreshold {
		return fmt.Errorf("unavailable threshold (%d) must exceed degraded threshold (%d)", cnf.Health.UnavailableThreshold, cnf.Health.DegradedThreshold)
	}
	for name, override := range cnf.Health.Services {
		if override.DegradedThreshold <= 0 || override.UnavailableThreshold <= override.DegradedThreshold {
			return fmt.Errorf("invalid health thresholds for service %s", name)
		}
	}

	if cnf.Supervisor.CheckIntervalSec <= 0 {
		cnf.Supervisor.CheckIntervalSec = DEFAULT_SUPERVISOR_INTERVAL_SEC
	}
	if cnf.Supervisor.GraceSec <= 0 {
		cnf.Supervisor.GraceSec = 10
	}
	for i := range cnf.Supervisor.Workers {
		w := &cnf.Supervisor.Workers[i]
		if w.Name == "" {
			return fmt.Errorf("supervisor worker %d has no name", i)
		}
		if len(w.Command) == 0 {
			return fmt.Errorf("supervisor worker %s has no command", w.Name)
		}
		if w.MaxRestarts <= 0 {
			w.MaxRestarts = 3
		}
		if w.RestartWindowSec <= 0 {
			w.RestartWindowSec = 3600
		}
	}

	if cnf.Audit.RetentionDays <= 0 {
		cnf.Audit.RetentionDays = DEFAULT_AUDIT_RETENTION_DAYS
	}

	if cnf.Producer.PollIntervalSec <= 0 {
		cnf.Producer.PollIntervalSec = 30
	}

	return nil
}

// ApprovalTimeout returns the configured approval window as a duration.
func (cnf *Configuration) ApprovalTimeout() time.Duration {
	return time.Duration(cnf.Approval.TimeoutHours) * time.Hour
}

// ThresholdsFor resolves the failure thresholds for a service, preferring a
// per-service override over the global defaults.
func (cnf *Configuration) ThresholdsFor(service string) (degraded, unavailable int) {
	if override, ok := cnf.Health.Services[service]; ok {
		return override.DegradedThreshold, override.UnavailableThreshold
	}
	return cnf.Health.DegradedThreshold, cnf.Health.UnavailableThreshold
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
