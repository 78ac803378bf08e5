package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/audit"
	"snaptrail/config"
	"snaptrail/document"
	"snaptrail/logging"
	"snaptrail/task"
)

const articleUID = "api::article.article"

func testConfig(t *testing.T, driver, mode string) *config.Config {
	t.Helper()
	logging.SetLogger(logging.NewNoopLogger())
	cfg := config.Default()
	cfg.Schema.Path = "testdata/blog.yaml"
	cfg.Store.Driver = driver
	cfg.Store.DSN = filepath.Join(t.TempDir(), "snaptrail.db")
	cfg.Dispatch.Mode = mode
	cfg.Dispatch.Workers = 1
	cfg.Tasks.PollInterval = 10 * time.Millisecond
	return cfg
}

func waitForRecords(t *testing.T, c *Components, docID string, n int) []*audit.Record {
	t.Helper()
	var out []*audit.Record
	require.Eventually(t, func() bool {
		recs, err := c.Stores.Audit.List(context.Background(), audit.Filter{DocumentID: docID})
		if err != nil {
			return false
		}
		out = recs
		return len(recs) == n
	}, 2*time.Second, 10*time.Millisecond)
	return out
}

func TestBuild_DetachedMemory(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t, "memory", config.DispatchDetached))
	require.NoError(t, err)
	assert.Nil(t, c.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	doc, err := c.Pipeline.Create(ctx, articleUID, map[string]any{"title": "Hello"}, "")
	require.NoError(t, err)
	id := doc["documentId"].(string)

	recs := waitForRecords(t, c, id, 1)
	assert.Equal(t, document.KindCreate, recs[0].Operation)

	cancel()
	require.NoError(t, c.Close(context.Background()))
}

func TestBuild_QueuedSQLite(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t, "sqlite", config.DispatchMemory))
	require.NoError(t, err)
	require.NotNil(t, c.Transport)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	doc, err := c.Pipeline.Create(ctx, articleUID, map[string]any{"title": "v1"}, "")
	require.NoError(t, err)
	id := doc["documentId"].(string)
	waitForRecords(t, c, id, 1)

	_, err = c.Pipeline.Update(ctx, articleUID, id, map[string]any{"title": "v2"}, "")
	require.NoError(t, err)
	recs := waitForRecords(t, c, id, 2)
	assert.Equal(t, "v1", recs[0].SnapshotBefore["title"])
	assert.Equal(t, "v2", recs[0].SnapshotAfter["title"])

	cancel()
	require.NoError(t, c.Close(context.Background()))
}

func TestBuild_SchedulerPublishesDueTasks(t *testing.T) {
	c, err := Build(context.Background(), testConfig(t, "sqlite", config.DispatchDetached))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	doc, err := c.Pipeline.Create(ctx, articleUID, map[string]any{"title": "draft"}, "")
	require.NoError(t, err)
	id := doc["documentId"].(string)

	tk, err := c.Tasks.Create(ctx, task.CreateInput{
		Name:        "publish draft",
		ScheduledAt: time.Now().Add(-time.Second),
		Documents:   []task.DocumentRef{{ContentType: articleUID, DocumentID: id, Operation: task.OperationPublish}},
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		got, err := c.Tasks.Get(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	waitForRecords(t, c, id, 2)

	cancel()
	require.NoError(t, c.Close(context.Background()))
}

func TestBuild_MissingSchema(t *testing.T) {
	cfg := testConfig(t, "memory", config.DispatchDetached)
	cfg.Schema.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
