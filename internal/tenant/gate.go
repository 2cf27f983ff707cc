// Package tenant scopes document access to the tenant that owns the document.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
)

// RedisGate checks tenant ownership against the tenant_id stored on the
// document hash.
type RedisGate struct {
	store *datasheet.Client
}

// NewRedisGate creates a gate reading from store.
func NewRedisGate(store *datasheet.Client) *RedisGate {
	return &RedisGate{store: store}
}

// BelongsToTenant reports whether documentID exists and is owned by tenantID.
// A missing document is not an error; it simply belongs to nobody.
func (g *RedisGate) BelongsToTenant(ctx context.Context, documentID, tenantID string) (bool, error) {
	if documentID == "" || tenantID == "" {
		return false, nil
	}
	owner, err := g.store.DocumentTenant(ctx, documentID)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read owner of document %s: %w", documentID, err)
	}
	return owner == tenantID, nil
}
