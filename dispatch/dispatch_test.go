package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrail/audit"
	"snaptrail/audit/memstore"
	"snaptrail/document"
	"snaptrail/messaging"
	"snaptrail/messaging/transport/memory"
	"snaptrail/patterns/retry"
	"snaptrail/snowflake"
)

func newRecorder(t *testing.T) (*audit.Recorder, *memstore.Store) {
	t.Helper()
	ids, err := snowflake.NewGenerator(0, 1)
	require.NoError(t, err)
	store := memstore.New()
	return audit.NewRecorder(store, ids), store
}

func capture(docID string) audit.Capture {
	return audit.Capture{
		TypeUID:   "api::article.article",
		Operation: document.KindCreate,
		After:     map[string]any{"documentId": docID, "title": "t"},
		At:        time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 1, MaxDelay: time.Millisecond}
}

func TestDetached_SurvivesCanceledRequest(t *testing.T) {
	rec, store := newRecorder(t)
	d := NewDetached(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Dispatch(ctx, capture("d")))
	}
	d.Wait()
	assert.Equal(t, 10, store.Len())
}

func TestQueued_EndToEndThroughMemoryTransport(t *testing.T) {
	rec, store := newRecorder(t)
	tpt := memory.NewMemoryTransport(16, 2)
	require.NoError(t, NewConsumer(rec, fastRetry(3), "memory").Register(tpt))
	require.NoError(t, tpt.Start(context.Background()))

	q := NewQueued(tpt, time.Second)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Dispatch(context.Background(), capture(id)))
	}
	require.NoError(t, tpt.Close())

	assert.Equal(t, 3, store.Len())
	recs, err := store.List(context.Background(), audit.Filter{DocumentID: "b"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "t", recs[0].SnapshotAfter["title"])
	assert.True(t, recs[0].CreatedAt.Equal(capture("b").At), "capture time survives the queue")
}

func TestQueued_PublishFailure(t *testing.T) {
	tpt := memory.NewMemoryTransport(1, 1)
	err := NewQueued(tpt, 0).Dispatch(context.Background(), capture("x"))
	assert.Error(t, err, "transport not started")
}

type flakyPersister struct {
	mu       sync.Mutex
	failures int
	calls    int32
	saved    []audit.Capture
}

func (f *flakyPersister) Persist(_ context.Context, c audit.Capture) error {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	f.saved = append(f.saved, c)
	return nil
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	p := &flakyPersister{failures: 2}
	c := NewConsumer(p, fastRetry(3), "test")

	msg := encode(t, capture("r"))
	require.NoError(t, c.Handle(context.Background(), msg))
	assert.Equal(t, int32(3), atomic.LoadInt32(&p.calls))
	require.Len(t, p.saved, 1)
	assert.Equal(t, "r", p.saved[0].After["documentId"])
}

func TestConsumer_ExhaustedRetriesReturnError(t *testing.T) {
	p := &flakyPersister{failures: 10}
	c := NewConsumer(p, fastRetry(2), "test")

	err := c.Handle(context.Background(), encode(t, capture("r")))
	assert.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestConsumer_DiscardsUndecodable(t *testing.T) {
	p := &flakyPersister{}
	c := NewConsumer(p, fastRetry(3), "test")

	err := c.Handle(context.Background(), &messaging.Message{ID: "bad", Topic: Topic, Payload: []byte(`"nope"`)})
	assert.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
}

func encode(t *testing.T, c audit.Capture) *messaging.Message {
	t.Helper()
	tpt := memory.NewMemoryTransportForTest(1)
	require.NoError(t, tpt.Start(context.Background()))
	require.NoError(t, NewQueued(tpt, time.Second).Dispatch(context.Background(), c))
	pending, err := tpt.CloseWithContext(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0]
}
