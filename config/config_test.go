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
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Missing data source DNS is a hard error
	cnf := Configuration{
		ProjectName: "",
		DataSource: DataSourceConfig{
			Dns: "",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	cnf = Configuration{
		DataSource: DataSourceConfig{
			Dns: "postgres://localhost:5432",
		},
		Redis: RedisConfig{
			Dns: "",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	cnf = Configuration{
		ProjectName: "Test Project",
		DataSource: DataSourceConfig{
			Dns: "some-dns",
		},
		Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Defaults are filled when sections are omitted
	if cnf.Approval.TimeoutHours != DEFAULT_APPROVAL_TIMEOUT_HOURS {
		t.Errorf("Expected default approval timeout %d, got %d", DEFAULT_APPROVAL_TIMEOUT_HOURS, cnf.Approval.TimeoutHours)
	}
	if cnf.Health.DegradedThreshold != DEFAULT_DEGRADED_THRESHOLD {
		t.Errorf("Expected default degraded threshold %d, got %d", DEFAULT_DEGRADED_THRESHOLD, cnf.Health.DegradedThreshold)
	}
	if cnf.Health.UnavailableThreshold != DEFAULT_UNAVAILABLE_THRESHOLD {
		t.Errorf("Expected default unavailable threshold %d, got %d", DEFAULT_UNAVAILABLE_THRESHOLD, cnf.Health.UnavailableThreshold)
	}
	if cnf.Retry.MaxAttempts != DEFAULT_RETRY_MAX_ATTEMPTS {
		t.Errorf("Expected default retry attempts %d, got %d", DEFAULT_RETRY_MAX_ATTEMPTS, cnf.Retry.MaxAttempts)
	}
	if cnf.Audit.RetentionDays != DEFAULT_AUDIT_RETENTION_DAYS {
		t.Errorf("Expected default retention %d, got %d", DEFAULT_AUDIT_RETENTION_DAYS, cnf.Audit.RetentionDays)
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	cnf := Configuration{
		ProjectName: "Test Project",
		DataSource:  DataSourceConfig{Dns: "some-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		Health: HealthConfig{
			DegradedThreshold:    5,
			UnavailableThreshold: 3,
		},
	}

	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected error when unavailable threshold is below degraded threshold")
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	cnf := Configuration{
		ProjectName: "Test Project",
		DataSource:  DataSourceConfig{Dns: "some-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
		Supervisor: SupervisorConfig{
			Workers: []WorkerConfig{
				{Name: "poller", Command: []string{"/usr/bin/poller"}},
			},
		},
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cnf.Supervisor.Workers[0].MaxRestarts != 3 {
		t.Errorf("Expected default max restarts 3, got %d", cnf.Supervisor.Workers[0].MaxRestarts)
	}
	if cnf.Supervisor.Workers[0].RestartWindowSec != 3600 {
		t.Errorf("Expected default restart window 3600, got %d", cnf.Supervisor.Workers[0].RestartWindowSec)
	}

	cnf.Supervisor.Workers = append(cnf.Supervisor.Workers, WorkerConfig{Name: "broken"})
	if err := cnf.validateAndAddDefaults(); err == nil {
		t.Error("Expected error for worker with no command")
	}
}

func TestThresholdsFor(t *testing.T) {
	cnf := Configuration{
		Health: HealthConfig{
			DegradedThreshold:    2,
			UnavailableThreshold: 5,
			Services: map[string]ServiceHealthOverride{
				"mail": {DegradedThreshold: 1, UnavailableThreshold: 3},
			},
		},
	}

	degraded, unavailable := cnf.ThresholdsFor("mail")
	if degraded != 1 || unavailable != 3 {
		t.Errorf("Expected per-service override (1, 3), got (%d, %d)", degraded, unavailable)
	}

	degraded, unavailable = cnf.ThresholdsFor("chat")
	if degraded != 2 || unavailable != 5 {
		t.Errorf("Expected global thresholds (2, 5), got (%d, %d)", degraded, unavailable)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "steward.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name()) // Clean up after the test

	// Sample configuration to write to the temp file
	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource: DataSourceConfig{
			Dns: "temp-dns",
		},
		Redis: RedisConfig{
			Dns: "temp-redis",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close() // Close the file so loadConfigFromFile can open it

	// Set an environment variable to override the project name
	os.Setenv("STEWARD_PROJECT_NAME", "Env Project")
	defer os.Unsetenv("STEWARD_PROJECT_NAME") // Clean up after the test

	// Load the configuration from the file
	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	// Fetch the loaded configuration
	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// Check if the environment variable override worked
	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected ProjectName to be 'Env Project', got '%s'", loadedConfig.ProjectName)
	}

	// Check if the DNS was loaded correctly from the file
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected DataSource.Dns to be 'temp-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
}

func TestInitConfig(t *testing.T) {
	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "steward.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name()) // Clean up after the test

	// Sample configuration to write to the temp file
	sampleConfig := Configuration{
		ProjectName: "InitConfig Test",
		DataSource: DataSourceConfig{
			Dns: "init-config-dns",
		}, Redis: RedisConfig{
			Dns: "localhost:6379",
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close() // Close the file so InitConfig can open it

	// Attempt to initialize the configuration using the temporary file
	if err := InitConfig(tmpFile.Name()); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	// Fetch the loaded configuration to verify it was loaded correctly
	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	// Verify the configuration was loaded correctly
	if loadedConfig.ProjectName != "InitConfig Test" {
		t.Errorf("Expected ProjectName to be 'InitConfig Test', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "init-config-dns" {
		t.Errorf("Expected DataSource.Dns to be 'init-config-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
}
