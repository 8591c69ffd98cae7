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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/model"
)

// auditCommands defines the "audit" command group for querying and
// maintaining the audit log.
func auditCommands(b *stewardInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "inspect and maintain the audit log",
	}

	cmd.AddCommand(auditQueryCommand(b))
	cmd.AddCommand(auditSummaryCommand(b))
	cmd.AddCommand(auditRetentionCommand(b))
	return cmd
}

func auditQueryCommand(b *stewardInstance) *cobra.Command {
	var actionType, domain, actor, result string
	var limit int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "query audit entries, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := b.steward.QueryAudit(context.Background(), model.AuditFilter{
				ActionType: actionType,
				Domain:     domain,
				Actor:      actor,
				Result:     result,
				Limit:      limit,
			})
			if err != nil {
				logrus.Fatalf("audit query failed: %v", err)
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-20s %-12s %-10s", e.Timestamp.Format(time.RFC3339), e.ActionType, e.Domain, e.Result)
				if e.Error != "" {
					line += "  " + e.Error
				}
				fmt.Println(line)
			}
		},
	}

	cmd.Flags().StringVar(&actionType, "action", "", "filter by action type")
	cmd.Flags().StringVar(&domain, "domain", "", "filter by domain")
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	cmd.Flags().StringVar(&result, "result", "", "filter by result")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to return")
	return cmd
}

func auditSummaryCommand(b *stewardInstance) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "print the daily audit summary",
		Run: func(cmd *cobra.Command, args []string) {
			day := time.Now()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					logrus.Fatalf("invalid --date, want YYYY-MM-DD: %v", err)
				}
				day = parsed
			}

			summary, err := b.steward.DailySummary(context.Background(), day)
			if err != nil {
				logrus.Fatalf("failed to build summary: %v", err)
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				logrus.Fatal(err)
			}
			fmt.Println(string(out))
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to summarize (YYYY-MM-DD, default today)")
	return cmd
}

func auditRetentionCommand(b *stewardInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "delete audit entries past the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			deleted, err := b.steward.EnforceAuditRetention(context.Background())
			if err != nil {
				logrus.Fatalf("retention failed: %v", err)
			}
			logrus.Infof("removed %d audit entries past the %d-day retention window", deleted, b.cnf.Audit.RetentionDays)
		},
	}
	return cmd
}
