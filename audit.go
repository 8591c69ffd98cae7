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
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/config"
	"github.com/stewardhq/steward/model"
)

// audit appends an entry to the audit log. A write failure is logged with the
// full entry so the record survives in the process log even when the database
// does not take it; the action itself is never rolled back over a failed
// audit write.
func (s *Steward) audit(ctx context.Context, entry *model.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if err := s.datasource.RecordAuditEntry(ctx, entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"action_type": entry.ActionType,
			"domain":      entry.Domain,
			"target":      entry.Target,
			"result":      entry.Result,
		}).Errorf("failed to append audit entry: %v", err)
	}
}

// QueryAudit returns audit entries matching the filter, newest first.
func (s *Steward) QueryAudit(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) {
	return s.datasource.QueryAuditEntries(ctx, filter)
}

// DailySummary aggregates one day of audit entries.
func (s *Steward) DailySummary(ctx context.Context, day time.Time) (*model.AuditSummary, error) {
	return s.datasource.GetDailySummary(ctx, day)
}

// EnforceAuditRetention deletes audit entries older than the configured
// retention window, whole days at a time. Returns the number of entries
// removed.
func (s *Steward) EnforceAuditRetention(ctx context.Context) (int64, error) {
	conf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().AddDate(0, 0, -conf.Audit.RetentionDays)
	deleted, err := s.datasource.EnforceAuditRetention(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		logrus.Infof("audit retention removed %d entries older than %s", deleted, cutoff.Format("2006-01-02"))
	}
	return deleted, nil
}
