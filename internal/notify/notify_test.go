package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*datasheet.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	store, err := datasheet.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestPublishAndSubscribe(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, store)
	require.NoError(t, err)
	defer sub.Close()

	pub := NewPublisher(store)
	pub.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, pub.Notify(ctx, []string{"alice", "bob"}, "doc-1", "P-101 was verified by carol"))

	select {
	case n := <-sub.Events():
		require.NotNil(t, n)
		assert.Equal(t, "doc-1", n.DocumentID)
		assert.Equal(t, []string{"alice", "bob"}, n.Recipients)
		assert.Equal(t, "P-101 was verified by carol", n.Message)
		assert.Equal(t, int64(1700000000000), n.SentAtMs)
		assert.True(t, n.For("bob"))
		assert.False(t, n.For("carol"))
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}
}

func TestSubscribe_SkipsMalformedMessages(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, store)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(datasheet.NotificationsChannel("test-instance"), "not json")
	require.NoError(t, NewPublisher(store).Notify(ctx, []string{"alice"}, "doc-2", "hello"))

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "failed to unmarshal notification")
	case <-ctx.Done():
		t.Fatal("timed out waiting for decode error")
	}
	select {
	case n := <-sub.Events():
		assert.Equal(t, "doc-2", n.DocumentID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	store, _ := setupTestStore(t)

	sub, err := Subscribe(context.Background(), store)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Events()
	for ok {
		_, ok = <-sub.Events()
	}
}

func TestNotify_RedisDown(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	err := NewPublisher(store).Notify(context.Background(), []string{"alice"}, "doc-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish notification")
}
