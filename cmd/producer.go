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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward"
)

// producerCommands defines the "producer" command: the file-drop producer
// polling the spool directory and ingesting what it finds.
func producerCommands(b *stewardInstance) *cobra.Command {
	var spoolDir string

	cmd := &cobra.Command{
		Use:   "producer",
		Short: "run the file-drop producer",
		Run: func(cmd *cobra.Command, args []string) {
			dir := spoolDir
			if dir == "" {
				dir = b.cnf.Producer.SpoolDir
			}
			if dir == "" {
				logrus.Fatal("no spool directory configured, set producer.spool_dir or --spool-dir")
			}

			producer, err := steward.NewFileProducer(dir)
			if err != nil {
				logrus.Fatalf("failed to create producer: %v", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			interval := time.Duration(b.cnf.Producer.PollIntervalSec) * time.Second
			logrus.Infof("producer watching %s every %s", dir, interval)
			if err := b.steward.RunProducer(ctx, producer, interval); err != nil && err != context.Canceled {
				logrus.Fatalf("producer stopped: %v", err)
			}
		},
	}

	cmd.Flags().StringVar(&spoolDir, "spool-dir", "", "spool directory to watch (overrides config)")
	return cmd
}
