package rebuild

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/internal/metrics"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInstance = "test-instance"

var alice = lifecycle.Scope{TenantID: "acme", ActorID: "alice"}

func setupTestStore(t *testing.T) (*datasheet.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := datasheet.NewClient(&redis.Options{Addr: mr.Addr()}, testInstance)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func testDocument() lifecycle.NewDocument {
	return lifecycle.NewDocument{
		Header: datasheet.Header{Name: "Cooling water pump", Tag: "P-101", ProjectID: "proj-7", Discipline: "mechanical"},
		Layout: []datasheet.Subsection{{
			ID:    "performance",
			Title: "Performance",
			Fields: []datasheet.FieldDefinition{
				{DefinitionID: "flow", Label: "Flow", Type: datasheet.FieldTypeNumber, UOM: "m3/h"},
			},
		}},
	}
}

func strPtr(s string) *string { return &s }

func TestEnqueue_DeduplicatesPendingDocuments(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	q := NewQueue(store)

	require.NoError(t, q.Enqueue(ctx, "doc-a", "doc-a", "doc-b", ""))
	require.NoError(t, q.Enqueue(ctx, "doc-b"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDrain_BuildsSummaryFromEngineWrites(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	q := NewQueue(store)
	m := metrics.New(prometheus.NewRegistry())
	engine := lifecycle.NewEngine(store, lifecycle.WithRebuilder(q))

	doc, err := engine.CreateDocument(ctx, alice, testDocument())
	require.NoError(t, err)
	_, err = engine.UpdateDocument(ctx, alice, doc.ID, lifecycle.DocumentUpdate{Values: map[string]*string{"flow": strPtr("120")}})
	require.NoError(t, err)
	_, err = engine.EnsureValueSet(ctx, alice, doc.ID, datasheet.ContextOffered, "vendor-1")
	require.NoError(t, err)

	w := NewWorker(store, WithMetrics(m), WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done, "repeated writes to one document collapse into one rebuild")

	summary, err := store.GetSummary(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cooling water pump", summary.Name)
	assert.Equal(t, "P-101", summary.Tag)
	assert.Equal(t, "acme", summary.TenantID)
	assert.Equal(t, datasheet.StatusModifiedDraft, summary.Status)
	assert.Equal(t, 1, summary.RevisionCount)
	assert.Equal(t, 1, summary.LatestSequence)
	assert.Equal(t, 2, summary.ValueSetCount, "requirement plus one offered set")
	assert.Equal(t, int64(1700000000000), summary.RebuiltAtMs)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("ok")))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	processing, err := store.RedisClient().LLen(ctx, datasheet.RebuildProcessingKey(testInstance, w.ID())).Result()
	require.NoError(t, err)
	assert.Zero(t, processing)
}

func TestRebuild_RecordsTemplateName(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	engine := lifecycle.NewEngine(store)

	in := testDocument()
	in.IsTemplate = true
	in.Header.Name = "Centrifugal pump template"
	tmpl, err := engine.CreateDocument(ctx, alice, in)
	require.NoError(t, err)
	child, err := engine.CreateFromTemplate(ctx, alice, tmpl.ID, testDocument().Header)
	require.NoError(t, err)

	summary, err := NewWorker(store).Rebuild(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, summary.IsTemplate)
	assert.Equal(t, "Centrifugal pump template", summary.TemplateName)

	summary, err = NewWorker(store).Rebuild(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, summary.IsTemplate)
	assert.Empty(t, summary.TemplateName)
}

func TestDrain_SkipsMissingDocuments(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, NewQueue(store).Enqueue(ctx, "ghost"))

	done, err := NewWorker(store).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	_, err = store.GetSummary(ctx, "ghost")
	assert.True(t, datasheet.IsNotFound(err))
}

func TestRecover_RequeuesOnlyDeadWorkersClaims(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()
	rdb := store.RedisClient()
	q := NewQueue(store)

	busy := NewWorker(store, WithWorkerID("busy"), WithHeartbeatTTL(time.Minute))
	crashed := NewWorker(store, WithWorkerID("crashed"), WithHeartbeatTTL(10*time.Second))
	require.NoError(t, busy.heartbeat(ctx))
	require.NoError(t, crashed.heartbeat(ctx))
	require.NoError(t, rdb.LPush(ctx, datasheet.RebuildProcessingKey(testInstance, "busy"), "doc-live").Err())
	require.NoError(t, rdb.LPush(ctx, datasheet.RebuildProcessingKey(testInstance, "crashed"), "doc-a", "doc-b").Err())

	starting := NewWorker(store, WithWorkerID("starting"))
	recovered, err := starting.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered, "claims of workers with a live heartbeat are left alone")

	mr.FastForward(15 * time.Second)

	recovered, err = starting.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	live, err := rdb.LRange(ctx, datasheet.RebuildProcessingKey(testInstance, "busy"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-live"}, live)

	workers, err := rdb.SMembers(ctx, datasheet.RebuildWorkersKey(testInstance)).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"busy", "starting"}, workers)

	recovered, err = starting.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestDrain_FinishingDoesNotTouchOtherWorkersClaims(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	rdb := store.RedisClient()

	other := NewWorker(store, WithWorkerID("other"))
	require.NoError(t, other.heartbeat(ctx))
	require.NoError(t, rdb.LPush(ctx, datasheet.RebuildProcessingKey(testInstance, "other"), "ghost").Err())

	require.NoError(t, NewQueue(store).Enqueue(ctx, "ghost"))
	done, err := NewWorker(store, WithWorkerID("mine")).Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	claims, err := rdb.LRange(ctx, datasheet.RebuildProcessingKey(testInstance, "other"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, claims)
}

func TestRebuild_NeverOverwritesNewerSummary(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	engine := lifecycle.NewEngine(store)

	doc, err := engine.CreateDocument(ctx, alice, testDocument())
	require.NoError(t, err)
	w := NewWorker(store, WithMetrics(m))

	first, err := w.Rebuild(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	// A rebuild that read later writes has already landed.
	newer := *first
	newer.Status = datasheet.StatusVerified
	newer.Generation = first.Generation + 3
	written, err := store.PutSummary(ctx, &newer)
	require.NoError(t, err)
	require.True(t, written)

	stale, err := w.Rebuild(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, stale)

	got, err := store.GetSummary(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, datasheet.StatusVerified, got.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("stale")))

	_, err = engine.UpdateDocument(ctx, alice, doc.ID, lifecycle.DocumentUpdate{Values: map[string]*string{"flow": strPtr("120")}})
	require.NoError(t, err)
	require.NoError(t, store.RedisClient().Set(ctx, datasheet.DocumentGenerationKey(testInstance, doc.ID), newer.Generation+1, 0).Err())

	fresh, err := w.Rebuild(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh, "a later generation replaces the stored summary")
	assert.Equal(t, datasheet.StatusModifiedDraft, fresh.Status)
	assert.Equal(t, 1, fresh.RevisionCount)
}

func TestRun_DeregistersOnStop(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(store, WithWorkerID("short-lived"), WithPollInterval(time.Hour))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	rdb := store.RedisClient()
	require.Eventually(t, func() bool {
		ok, err := rdb.SIsMember(context.Background(), datasheet.RebuildWorkersKey(testInstance), "short-lived").Result()
		return err == nil && ok
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	ok, err := rdb.SIsMember(context.Background(), datasheet.RebuildWorkersKey(testInstance), "short-lived").Result()
	require.NoError(t, err)
	assert.False(t, ok)
	alive, err := rdb.Exists(context.Background(), datasheet.RebuildHeartbeatKey(testInstance, "short-lived")).Result()
	require.NoError(t, err)
	assert.Zero(t, alive)
}

func TestRun_RebuildsOnKick(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := NewQueue(store)
	engine := lifecycle.NewEngine(store, lifecycle.WithRebuilder(q))

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- NewWorker(store, WithPollInterval(time.Hour)).Run(runCtx) }()

	doc, err := engine.CreateDocument(ctx, alice, testDocument())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := store.GetSummary(ctx, doc.ID)
		return err == nil && s.Tag == "P-101"
	}, 3*time.Second, 10*time.Millisecond)

	stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("worker did not stop")
	}
}

func TestDrain_RedisDown(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	_, err := NewWorker(store).Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record rebuild worker heartbeat")
}
