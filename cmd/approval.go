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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/model"
)

// approvalCommands defines the "approve" and "reject" commands, the CLI's
// human decision surface for pending approval requests.
func approvalCommands(b *stewardInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "resolve pending approval requests",
	}

	cmd.AddCommand(decisionCommand(b, "approve", model.DecisionApproved))
	cmd.AddCommand(decisionCommand(b, "reject", model.DecisionRejected))
	cmd.AddCommand(retryCommand(b))
	return cmd
}

// retryCommand re-enters a failed work item into the approval gate. The retry
// itself still waits for an approve decision; this only files the request.
func retryCommand(b *stewardInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <work-item-id>",
		Short: "request a retry of a failed work item",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			req, err := b.steward.RetryFailed(context.Background(), args[0])
			if err != nil {
				logrus.Fatalf("failed to request retry of %s: %v", args[0], err)
			}
			logrus.Infof("retry of %s filed as approval request %s, expires %s", args[0], req.ApprovalID, req.ExpiresAt.Format(time.RFC822))
		},
	}
}

func decisionCommand(b *stewardInstance, use string, decision model.Decision) *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   use + " <approval-id>",
		Short: use + " a pending approval request",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if approver == "" {
				logrus.Fatal("--by is required: decisions are always attributed to a person")
			}
			if err := b.steward.Resolve(context.Background(), args[0], decision, approver); err != nil {
				logrus.Fatalf("failed to %s %s: %v", use, args[0], err)
			}
			logrus.Infof("approval %s resolved as %s by %s", args[0], decision, approver)
		},
	}

	cmd.Flags().StringVar(&approver, "by", "", "who is making this decision")
	return cmd
}
