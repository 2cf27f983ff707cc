package datasheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tx is a unit of work scoped to one document.
//
// Reads go through a connection that WATCHes the document's generation key and
// revision index. Writes are staged and applied together in one MULTI/EXEC on
// commit, which also increments the generation key. A Tx is only valid inside
// the function passed to Client.Update.
type Tx struct {
	reader
	rtx        *redis.Tx
	documentID string
	logger     zerolog.Logger

	begun     bool
	ops       []func(ctx context.Context, pipe redis.Pipeliner)
	hooks     []func(ctx context.Context)
	doc       *Document
	values    map[string]*string
	stagedSeq int
}

// Update runs fn as a unit of work on one document.
//
// If fn returns an error, staged writes are discarded and the error is returned
// unchanged. If another unit of work on the same document commits first, fn is
// re-run from scratch on a fresh Tx with exponential backoff. When the retry
// budget runs out the result is a KindConflict error.
//
// Hooks registered with AfterCommit run after the successful commit only.
func (c *Client) Update(ctx context.Context, documentID string, fn func(tx *Tx) error) error {
	if documentID == "" {
		return NewValidationError("update", "document id cannot be empty")
	}

	keys := []string{
		DocumentGenerationKey(c.instanceName, documentID),
		DocumentRevisionsKey(c.instanceName, documentID),
	}

	var committed *Tx
	attempts := 0
	operation := func() error {
		attempts++
		var tx *Tx
		err := c.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx = c.begin(rtx, documentID)
			if err := fn(tx); err != nil {
				tx.rollback(ctx)
				return err
			}
			return tx.commit(ctx)
		}, keys...)

		switch {
		case err == nil:
			committed = tx
			return nil
		case errors.Is(err, redis.TxFailedErr):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.policy.InitialInterval
	eb.MaxInterval = c.policy.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.policy.MaxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().
			Str("event_type", "tx_retry").
			Str("document_id", documentID).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("unit of work lost a race, retrying")
		if c.policy.OnRetry != nil {
			c.policy.OnRetry(documentID, attempts)
		}
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return &Error{
				Kind:    KindConflict,
				Op:      "update",
				Message: fmt.Sprintf("document %s is busy: gave up after %d attempts", documentID, attempts),
				Err:     err,
			}
		}
		return err
	}

	committed.runHooks(ctx)
	return nil
}

func (c *Client) begin(rtx *redis.Tx, documentID string) *Tx {
	return &Tx{
		reader:     reader{rdb: rtx, instanceName: c.instanceName},
		rtx:        rtx,
		documentID: documentID,
		logger:     c.logger,
		begun:      true,
	}
}

func (t *Tx) commit(ctx context.Context) error {
	if len(t.ops) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range t.ops {
			op(ctx, pipe)
		}
		pipe.Incr(ctx, DocumentGenerationKey(t.instanceName, t.documentID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		t.rollback(ctx)
	}
	return err
}

// rollback discards staged writes and releases the watch. It is a no-op for a
// Tx that never began. A failure here is logged; the caller keeps returning
// the error that triggered the rollback.
func (t *Tx) rollback(ctx context.Context) {
	if !t.begun {
		return
	}
	t.begun = false
	t.ops = nil
	t.hooks = nil
	t.doc = nil
	t.values = nil
	if err := t.rtx.Unwatch(ctx).Err(); err != nil {
		t.logger.Warn().
			Err(err).
			Str("document_id", t.documentID).
			Msg("rollback failed")
	}
}

func (t *Tx) runHooks(ctx context.Context) {
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range t.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error().
						Str("event_type", "hook_failed").
						Str("document_id", t.documentID).
						Interface("panic", r).
						Msg("post-commit hook panicked")
				}
			}()
			hook(hookCtx)
		}()
	}
}

// DocumentID returns the document this unit of work is scoped to.
func (t *Tx) DocumentID() string {
	return t.documentID
}

// AfterCommit registers fn to run once the unit of work has committed.
// Hooks never run for attempts that were rolled back or retried.
func (t *Tx) AfterCommit(fn func(ctx context.Context)) {
	t.hooks = append(t.hooks, fn)
}

func (t *Tx) stage(op func(ctx context.Context, pipe redis.Pipeliner)) {
	t.ops = append(t.ops, op)
}

// Document returns the scoped document, including writes staged in this Tx.
// Returns (nil, redis.Nil) if the document doesn't exist.
func (t *Tx) Document(ctx context.Context) (*Document, error) {
	if t.doc != nil {
		d := *t.doc
		return &d, nil
	}
	return t.document(ctx, t.documentID)
}

// FieldValues returns the live values of the scoped document, including staged writes.
func (t *Tx) FieldValues(ctx context.Context) (map[string]string, error) {
	values, err := t.fieldValues(ctx, t.documentID)
	if err != nil {
		return nil, err
	}
	for id, v := range t.values {
		if v == nil {
			delete(values, id)
		} else {
			values[id] = *v
		}
	}
	return values, nil
}

// Revision reads a revision by ID. Returns (nil, redis.Nil) if it doesn't exist.
func (t *Tx) Revision(ctx context.Context, revisionID string) (*Revision, error) {
	return t.revision(ctx, revisionID)
}

// NextSequence returns the sequence number the next revision of the scoped
// document must take. The revision index is watched, so a concurrent writer
// taking the same number makes this unit of work retry.
func (t *Tx) NextSequence(ctx context.Context) (int, error) {
	if t.stagedSeq > 0 {
		return t.stagedSeq + 1, nil
	}
	latest, err := t.latestSequence(ctx, t.documentID)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// ValueSetID looks up the value set occupying a slot (see ValueSetSlot).
// Returns ("", redis.Nil) if the slot is empty.
func (t *Tx) ValueSetID(ctx context.Context, slot string) (string, error) {
	id, err := t.rtx.HGet(ctx, DocumentValueSetsKey(t.instanceName, t.documentID), slot).Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read value set index: %w", err)
	}
	return id, nil
}

// ValueSet reads a value set by ID. Returns (nil, redis.Nil) if it doesn't exist.
func (t *Tx) ValueSet(ctx context.Context, valueSetID string) (*ValueSet, error) {
	return t.valueSet(ctx, valueSetID)
}

// ValueSetValues reads the committed values of a value set.
func (t *Tx) ValueSetValues(ctx context.Context, valueSetID string) (map[string]string, error) {
	return t.valueSetValues(ctx, valueSetID)
}

// Variances reads the committed variance overrides of a value set.
func (t *Tx) Variances(ctx context.Context, valueSetID string) (map[string]*VarianceOverride, error) {
	return t.variances(ctx, valueSetID)
}

// RatingsBlock reads a ratings block by ID. Returns (nil, redis.Nil) if it doesn't exist.
func (t *Tx) RatingsBlock(ctx context.Context, blockID string) (*RatingsBlock, error) {
	return t.ratingsBlock(ctx, blockID)
}

// RatingsBlockIDs reads the IDs of the scoped document's ratings blocks.
func (t *Tx) RatingsBlockIDs(ctx context.Context) ([]string, error) {
	return t.ratingsBlockIDs(ctx, t.documentID)
}

// TemplateChildren reads the documents created from the scoped template.
func (t *Tx) TemplateChildren(ctx context.Context) ([]string, error) {
	return t.templateChildren(ctx, t.documentID)
}

// PutDocument stages a full write of the scoped document.
func (t *Tx) PutDocument(d *Document) error {
	if d.ID != t.documentID {
		return fmt.Errorf("document %s is outside the unit of work for %s", d.ID, t.documentID)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	hash, err := DocumentToHash(d)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	key := DocumentKey(t.instanceName, d.ID)
	indexKey := DocumentsIndexKey(t.instanceName)
	member := redis.Z{Score: float64(d.CreatedAtMs), Member: d.ID}
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, hash)
		pipe.ZAddNX(ctx, indexKey, member)
	})
	staged := *d
	t.doc = &staged
	return nil
}

// SetFieldValue stages an upsert of a live field value. A nil value clears it.
func (t *Tx) SetFieldValue(definitionID string, value *string) {
	key := DocumentValuesKey(t.instanceName, t.documentID)
	if value == nil {
		t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HDel(ctx, key, definitionID)
		})
	} else {
		v := *value
		t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HSet(ctx, key, definitionID, v)
		})
	}
	if t.values == nil {
		t.values = make(map[string]*string)
	}
	if value == nil {
		t.values[definitionID] = nil
	} else {
		v := *value
		t.values[definitionID] = &v
	}
}

// PutRevision stages an append to the revision ledger.
func (t *Tx) PutRevision(r *Revision) error {
	if r.DocumentID != t.documentID {
		return fmt.Errorf("revision of document %s is outside the unit of work for %s", r.DocumentID, t.documentID)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid revision: %w", err)
	}
	hash := RevisionToHash(r)
	key := RevisionKey(t.instanceName, r.ID)
	indexKey := DocumentRevisionsKey(t.instanceName, t.documentID)
	member := redis.Z{Score: float64(r.Sequence), Member: r.ID}
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, hash)
		pipe.ZAdd(ctx, indexKey, member)
	})
	t.stagedSeq = r.Sequence
	return nil
}

// PutValueSet stages a write of a value set and its slot in the document index.
func (t *Tx) PutValueSet(v *ValueSet) error {
	if v.DocumentID != t.documentID {
		return fmt.Errorf("value set of document %s is outside the unit of work for %s", v.DocumentID, t.documentID)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid value set: %w", err)
	}
	hash := ValueSetToHash(v)
	key := ValueSetKey(t.instanceName, v.ID)
	indexKey := DocumentValueSetsKey(t.instanceName, t.documentID)
	slot, id := v.Slot(), v.ID
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, hash)
		pipe.HSet(ctx, indexKey, slot, id)
	})
	return nil
}

// SetValueSetValue stages an upsert of one value in a value set. A nil value clears it.
func (t *Tx) SetValueSetValue(valueSetID, definitionID string, value *string) {
	key := ValueSetValuesKey(t.instanceName, valueSetID)
	if value == nil {
		t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
			pipe.HDel(ctx, key, definitionID)
		})
		return
	}
	v := *value
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, definitionID, v)
	})
}

// PutVariance stages an upsert of a variance override.
func (t *Tx) PutVariance(v *VarianceOverride) error {
	if err := v.Status.Validate(); err != nil {
		return NewValidationError("put variance", err.Error())
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal variance: %w", err)
	}
	key := ValueSetVariancesKey(t.instanceName, v.ValueSetID)
	field := v.FieldDefinitionID
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, field, string(payload))
	})
	return nil
}

// DeleteVariance stages removal of a variance override.
func (t *Tx) DeleteVariance(valueSetID, definitionID string) {
	key := ValueSetVariancesKey(t.instanceName, valueSetID)
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HDel(ctx, key, definitionID)
	})
}

// PutRatingsBlock stages a write of a ratings block.
func (t *Tx) PutRatingsBlock(b *RatingsBlock) error {
	if b.DocumentID != t.documentID {
		return fmt.Errorf("ratings block of document %s is outside the unit of work for %s", b.DocumentID, t.documentID)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid ratings block: %w", err)
	}
	hash, err := RatingsBlockToHash(b)
	if err != nil {
		return fmt.Errorf("failed to serialize ratings block: %w", err)
	}
	key := RatingsBlockKey(t.instanceName, b.ID)
	indexKey := DocumentRatingsKey(t.instanceName, t.documentID)
	id := b.ID
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, hash)
		pipe.SAdd(ctx, indexKey, id)
	})
	return nil
}

// DeleteRatingsBlock stages removal of a ratings block.
func (t *Tx) DeleteRatingsBlock(blockID string) {
	key := RatingsBlockKey(t.instanceName, blockID)
	indexKey := DocumentRatingsKey(t.instanceName, t.documentID)
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, indexKey, blockID)
	})
}

// AddTemplateChild stages recording the scoped document as created from templateID.
func (t *Tx) AddTemplateChild(templateID string) {
	key := TemplateChildrenKey(t.instanceName, templateID)
	child := t.documentID
	t.stage(func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, key, child)
	})
}
