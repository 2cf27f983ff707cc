package datasheet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// reader holds the read paths shared by Client (plain connection) and Tx
// (watched connection).
type reader struct {
	rdb          redis.Cmdable
	instanceName string
}

func (r reader) document(ctx context.Context, documentID string) (*Document, error) {
	hash, err := r.rdb.HGetAll(ctx, DocumentKey(r.instanceName, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read document from Redis: %w", err)
	}
	// HGetAll returns an empty map for non-existent keys
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	doc, err := HashToDocument(hash)
	if err != nil {
		return nil, NewCorruptError("read document", fmt.Sprintf("document %s could not be decoded", documentID), err)
	}
	return doc, nil
}

func (r reader) fieldValues(ctx context.Context, documentID string) (map[string]string, error) {
	values, err := r.rdb.HGetAll(ctx, DocumentValuesKey(r.instanceName, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read field values from Redis: %w", err)
	}
	return values, nil
}

func (r reader) revision(ctx context.Context, revisionID string) (*Revision, error) {
	hash, err := r.rdb.HGetAll(ctx, RevisionKey(r.instanceName, revisionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revision from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	rev, err := HashToRevision(hash)
	if err != nil {
		return nil, NewCorruptError("read revision", fmt.Sprintf("revision %s could not be decoded", revisionID), err)
	}
	return rev, nil
}

func (r reader) latestSequence(ctx context.Context, documentID string) (int, error) {
	top, err := r.rdb.ZRevRangeWithScores(ctx, DocumentRevisionsKey(r.instanceName, documentID), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read revision index: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return int(top[0].Score), nil
}

func (r reader) valueSetSlots(ctx context.Context, documentID string) (map[string]string, error) {
	slots, err := r.rdb.HGetAll(ctx, DocumentValueSetsKey(r.instanceName, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read value set index: %w", err)
	}
	return slots, nil
}

func (r reader) valueSet(ctx context.Context, valueSetID string) (*ValueSet, error) {
	hash, err := r.rdb.HGetAll(ctx, ValueSetKey(r.instanceName, valueSetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read value set from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	return HashToValueSet(hash), nil
}

func (r reader) valueSetValues(ctx context.Context, valueSetID string) (map[string]string, error) {
	values, err := r.rdb.HGetAll(ctx, ValueSetValuesKey(r.instanceName, valueSetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read value set values from Redis: %w", err)
	}
	return values, nil
}

func (r reader) variances(ctx context.Context, valueSetID string) (map[string]*VarianceOverride, error) {
	raw, err := r.rdb.HGetAll(ctx, ValueSetVariancesKey(r.instanceName, valueSetID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read variances from Redis: %w", err)
	}
	out := make(map[string]*VarianceOverride, len(raw))
	for fieldID, s := range raw {
		var v VarianceOverride
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, NewCorruptError("read variances", fmt.Sprintf("variance %s/%s could not be decoded", valueSetID, fieldID), err)
		}
		out[fieldID] = &v
	}
	return out, nil
}

func (r reader) ratingsBlock(ctx context.Context, blockID string) (*RatingsBlock, error) {
	hash, err := r.rdb.HGetAll(ctx, RatingsBlockKey(r.instanceName, blockID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ratings block from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	block, err := HashToRatingsBlock(hash)
	if err != nil {
		return nil, NewCorruptError("read ratings block", fmt.Sprintf("ratings block %s could not be decoded", blockID), err)
	}
	return block, nil
}

func (r reader) ratingsBlockIDs(ctx context.Context, documentID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, DocumentRatingsKey(r.instanceName, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ratings index: %w", err)
	}
	return ids, nil
}

func (r reader) templateChildren(ctx context.Context, templateID string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, TemplateChildrenKey(r.instanceName, templateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read template children: %w", err)
	}
	return ids, nil
}
