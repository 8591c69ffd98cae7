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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardhq/steward/model"
)

func writeSpoolFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileProducerPollInNameOrder(t *testing.T) {
	dir := t.TempDir()
	producer, err := NewFileProducer(dir)
	require.NoError(t, err)

	writeSpoolFile(t, dir, "002-second.json", `{"external_id": "evt-2", "payload": {"steps": []}}`)
	writeSpoolFile(t, dir, "001-first.json", `{"external_id": "evt-1", "priority": "high", "payload": {"steps": []}}`)
	writeSpoolFile(t, dir, "notes.txt", "not an event")

	items, err := producer.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "evt-1", items[0].ExternalID)
	assert.Equal(t, model.PriorityHigh, items[0].Priority)
	assert.Equal(t, "evt-2", items[1].ExternalID)
	assert.Equal(t, model.PriorityNormal, items[1].Priority, "missing priority defaults to normal")
	assert.Equal(t, model.StateIngested, items[0].State)
	assert.Equal(t, model.WorkItemIDFor(model.SourceFiles, "evt-1"), items[0].WorkItemID)

	// Processed files moved to done/, the stray .txt stayed put
	assert.FileExists(t, filepath.Join(dir, "done", "001-first.json"))
	assert.FileExists(t, filepath.Join(dir, "done", "002-second.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "001-first.json"))
}

func TestFileProducerSetsAsideMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	producer, err := NewFileProducer(dir)
	require.NoError(t, err)

	writeSpoolFile(t, dir, "bad.json", `{not json`)
	writeSpoolFile(t, dir, "empty-id.json", `{"payload": {}}`)
	writeSpoolFile(t, dir, "good.json", `{"external_id": "evt-ok", "payload": {}}`)

	items, err := producer.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "evt-ok", items[0].ExternalID)

	// Malformed files stop blocking the spool but remain inspectable
	assert.FileExists(t, filepath.Join(dir, "done", "bad.json.bad"))
	assert.FileExists(t, filepath.Join(dir, "done", "empty-id.json.bad"))
	assert.NoFileExists(t, filepath.Join(dir, "bad.json"))
}

func TestFileProducerEmptySpool(t *testing.T) {
	dir := t.TempDir()
	producer, err := NewFileProducer(dir)
	require.NoError(t, err)

	items, err := producer.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFileProducerRedeliveryIsSafe(t *testing.T) {
	dir := t.TempDir()
	producer, err := NewFileProducer(dir)
	require.NoError(t, err)

	// The same external id dropped twice yields the same work item id both
	// times, so ingestion dedups the second delivery
	writeSpoolFile(t, dir, "a.json", `{"external_id": "evt-dup", "payload": {}}`)
	first, err := producer.Poll(context.Background())
	require.NoError(t, err)

	writeSpoolFile(t, dir, "b.json", `{"external_id": "evt-dup", "payload": {}}`)
	second, err := producer.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].WorkItemID, second[0].WorkItemID)
}
