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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward"
	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/database"
	"github.com/stewardhq/steward/internal/notification"
	"github.com/stewardhq/steward/model"
)

// Steward represents the CLI application, encapsulating the root Cobra command.
type Steward struct {
	cmd *cobra.Command // Root command for the CLI application
}

// stewardInstance holds the control plane instance and its configuration,
// shared by every subcommand after preRun.
type stewardInstance struct {
	steward *steward.Steward
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec) // Log the recovered panic
		os.Exit(1)        // Exit the program with an error status
	}
}

// preRun sets up the configuration and initializes the control plane before
// running any command.
func preRun(app *stewardInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newSteward, err := setupSteward(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.steward = newSteward
		app.cnf = cnf

		return nil
	}
}

// setupSteward creates and initializes a new control plane instance based on
// the provided configuration.
func setupSteward(cfg *config.Configuration) (*steward.Steward, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newSteward, err := steward.NewSteward(db, steward.PayloadPlanner{})
	if err != nil {
		return nil, fmt.Errorf("error creating steward: %v", err)
	}

	if cfg.Dispatch.Url != "" {
		registerDispatchExecutor(newSteward, cfg)
	}
	return newSteward, nil
}

// registerDispatchExecutor binds the outbound HTTP executor to every action
// kind the plans can carry.
func registerDispatchExecutor(s *steward.Steward, cfg *config.Configuration) {
	exec := steward.NewHTTPExecutor(cfg)
	for _, kind := range model.AllActionKinds() {
		s.Executors().Register(kind, exec)
	}
}

// NewCLI creates the command-line interface for the Steward control plane.
func NewCLI() *Steward {
	var configFile string
	b := &stewardInstance{}

	var rootCmd = &cobra.Command{
		Use:   "steward",
		Short: "Reliability and lifecycle control plane",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./steward.json", "Configuration file for the control plane")

	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(supervisorCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(producerCommands(b))
	rootCmd.AddCommand(approvalCommands(b))
	rootCmd.AddCommand(auditCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Steward{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Steward) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// main recovers from any panic, initializes the CLI, and executes it.
func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
