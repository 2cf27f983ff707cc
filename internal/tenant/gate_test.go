package tenant

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGate_BelongsToTenant(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := datasheet.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer store.Close()

	mr.HSet(datasheet.DocumentKey("test-instance", "doc-1"), "tenant_id", "acme")
	gate := NewRedisGate(store)
	ctx := context.Background()

	tests := []struct {
		name       string
		documentID string
		tenantID   string
		want       bool
	}{
		{"owner", "doc-1", "acme", true},
		{"other tenant", "doc-1", "globex", false},
		{"missing document", "doc-2", "acme", false},
		{"empty tenant", "doc-1", "", false},
		{"empty document", "", "acme", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gate.BelongsToTenant(ctx, tt.documentID, tt.tenantID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedisGate_StorageFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := datasheet.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer store.Close()

	mr.Close()
	_, err = NewRedisGate(store).BelongsToTenant(context.Background(), "doc-1", "acme")
	assert.Error(t, err)
}
