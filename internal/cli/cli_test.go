package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/audit"
	auditsql "snaptrail/audit/sqlstore"
	core "snaptrail/data/db"
	"snaptrail/data/db/basic"
	"snaptrail/document"
	"snaptrail/logging"
	"snaptrail/task"
	tasksql "snaptrail/task/sqlstore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logging.SetLogger(logging.NewNoopLogger())
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"plan"}, {"audits", "list"}, {"tasks", "list"}, {"tasks", "run-pending"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("schema"))
}

func TestPlanCommand(t *testing.T) {
	out, err := execute(t, "plan", "api::article.article", "--schema", "testdata/blog.yaml")
	require.NoError(t, err)

	var plan map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Contains(t, plan, "author")
	assert.Contains(t, plan, "tags")
	assert.NotContains(t, plan, "createdBy")
}

func TestPlanCommand_RequiresType(t *testing.T) {
	_, err := execute(t, "plan", "--schema", "testdata/blog.yaml")
	assert.Error(t, err)
}

func seedDB(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cli.db")
	db, err := basic.Open(context.Background(), core.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	defer db.Close()

	audits, err := auditsql.New(db)
	require.NoError(t, err)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, op := range []document.Kind{document.KindCreate, document.KindDelete} {
		rec := &audit.Record{
			ID:               int64(i + 1),
			SchemaVersion:    audit.DefaultSchemaVersion,
			ContentType:      "api::article.article",
			TargetDocumentID: "doc-1",
			Operation:        op,
			OperationStatus:  audit.StatusSuccess,
			CreatedAt:        at.Add(time.Duration(i) * time.Minute),
		}
		if op == document.KindCreate {
			rec.SnapshotAfter = map[string]any{"title": "Hello"}
		}
		require.NoError(t, audits.Save(context.Background(), rec))
	}

	tasks, err := tasksql.New(db)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(context.Background(), &task.Task{
		ID: "t1", Name: "launch", Documents: []task.DocumentRef{}, ScheduledAt: at,
		Status: task.StatusPending, CreatedAt: at, UpdatedAt: at,
	}))
	return dsn
}

func TestAuditsList(t *testing.T) {
	t.Setenv("SNAPTRAIL_STORE_DSN", seedDB(t))

	out, err := execute(t, "audits", "list", "--document", "doc-1")
	require.NoError(t, err)
	var records []audit.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	assert.Equal(t, document.KindDelete, records[0].Operation)

	out, err = execute(t, "audits", "list", "--restorable")
	require.NoError(t, err)
	records = nil
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, document.KindCreate, records[0].Operation)
}

func TestTasksList(t *testing.T) {
	t.Setenv("SNAPTRAIL_STORE_DSN", seedDB(t))

	out, err := execute(t, "tasks", "list", "--status", "pending")
	require.NoError(t, err)
	var tasks []task.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "launch", tasks[0].Name)
}

func TestTasksRunPending(t *testing.T) {
	dsn := seedDB(t)
	t.Setenv("SNAPTRAIL_STORE_DSN", dsn)

	out, err := execute(t, "tasks", "run-pending", "--schema", "testdata/blog.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 1 due task(s)")

	out, err = execute(t, "tasks", "list", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "no documents")
}
