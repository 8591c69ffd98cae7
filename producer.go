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
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stewardhq/steward/internal/faults"
	"github.com/stewardhq/steward/model"
)

// spoolEvent is the on-disk format of one dropped event file.
type spoolEvent struct {
	ExternalID string          `json:"external_id"`
	Priority   model.Priority  `json:"priority,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// FileProducer watches a spool directory for dropped JSON event files. Each
// file is one event; processed files move to a done/ subdirectory so a crash
// between read and ingest re-delivers rather than loses. Duplicate delivery
// is safe because ingestion is idempotent.
type FileProducer struct {
	dir    string
	source model.Source
}

// NewFileProducer returns a producer reading from the given spool directory.
// The directory and its done/ subdirectory are created if missing.
func NewFileProducer(dir string) (*FileProducer, error) {
	if err := os.MkdirAll(filepath.Join(dir, "done"), 0o755); err != nil {
		return nil, faults.Wrap(faults.Permanent, "failed to create spool directory", err)
	}
	return &FileProducer{dir: dir, source: model.SourceFiles}, nil
}

// Source identifies the event stream this producer watches.
func (p *FileProducer) Source() model.Source {
	return p.source
}

// Poll reads every pending event file in name order and returns the work
// items. Files it could parse are moved to done/; malformed files are moved
// to done/ with a .bad suffix so they stop blocking the queue but stay
// inspectable.
func (p *FileProducer) Poll(ctx context.Context) ([]*model.WorkItem, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, faults.Wrap(faults.Transient, "failed to read spool directory", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	now := time.Now()
	var items []*model.WorkItem
	for _, name := range names {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}

		path := filepath.Join(p.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.Warnf("failed to read spool file %s: %v", name, err)
			continue
		}

		var event spoolEvent
		if err := json.Unmarshal(data, &event); err != nil || event.ExternalID == "" {
			logrus.Errorf("malformed spool file %s, setting aside: %v", name, err)
			p.finish(name, name+".bad")
			continue
		}

		priority := event.Priority
		if priority == "" {
			priority = model.PriorityNormal
		}
		items = append(items, &model.WorkItem{
			WorkItemID:       model.WorkItemIDFor(p.source, event.ExternalID),
			Source:           p.source,
			ExternalID:       event.ExternalID,
			Payload:          event.Payload,
			State:            model.StateIngested,
			Priority:         priority,
			CreatedAt:        now,
			LastTransitionAt: now,
		})
		p.finish(name, name)
	}
	return items, nil
}

func (p *FileProducer) finish(name, doneName string) {
	src := filepath.Join(p.dir, name)
	dst := filepath.Join(p.dir, "done", doneName)
	if err := os.Rename(src, dst); err != nil {
		logrus.Warnf("failed to move spool file %s to done: %v", name, err)
	}
}

// RunProducer polls the producer on the given interval, ingesting everything
// it returns, until the context is cancelled. Duplicate events surface as
// DUPLICATE_IGNORED and are skipped quietly.
func (s *Steward) RunProducer(ctx context.Context, producer Producer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		items, err := producer.Poll(ctx)
		if err != nil {
			logrus.Errorf("producer %s poll failed: %v", producer.Source(), err)
		}
		for _, item := range items {
			if _, err := s.Ingest(ctx, item.Source, item.ExternalID, item.Payload, item.Priority); err != nil {
				if faults.Is(err, faults.DuplicateIgnored) {
					continue
				}
				logrus.Errorf("failed to ingest %s from %s: %v", item.ExternalID, producer.Source(), err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
