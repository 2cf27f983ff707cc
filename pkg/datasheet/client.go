package datasheet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client provides instance-scoped Redis operations for datasheets.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
	policy       TxPolicy
	logger       zerolog.Logger
}

// TxPolicy controls how Update retries units of work that lost a race.
type TxPolicy struct {
	MaxAttempts     int           // Total attempts including the first (default 50)
	InitialInterval time.Duration // First backoff interval (default 2ms)
	MaxInterval     time.Duration // Backoff ceiling (default 100ms)

	// OnRetry, if set, is called each time a unit of work is retried.
	OnRetry func(documentID string, attempt int)
}

// DefaultTxPolicy returns the policy used when none is configured.
func DefaultTxPolicy() TxPolicy {
	return TxPolicy{
		MaxAttempts:     50,
		InitialInterval: 2 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
	}
}

// NewClient creates a new datasheet client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: Lodge instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		policy:       DefaultTxPolicy(),
		logger:       zerolog.Nop(),
	}, nil
}

// SetTxPolicy replaces the retry policy. Zero fields keep their defaults.
func (c *Client) SetTxPolicy(p TxPolicy) {
	def := DefaultTxPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	c.policy = p
}

// SetLogger sets the logger used for rollback and retry diagnostics.
func (c *Client) SetLogger(l zerolog.Logger) {
	c.logger = l
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RedisClient exposes the underlying connection for packages that publish or
// consume Pub/Sub channels and queues in the same namespace.
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

func (c *Client) reader() reader {
	return reader{rdb: c.rdb, instanceName: c.instanceName}
}

// GetDocument retrieves a document by ID.
// Returns (nil, redis.Nil) if the document doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	return c.reader().document(ctx, documentID)
}

// DocumentTenant returns the tenant that owns a document.
// Returns ("", redis.Nil) if the document doesn't exist.
func (c *Client) DocumentTenant(ctx context.Context, documentID string) (string, error) {
	tenant, err := c.rdb.HGet(ctx, DocumentKey(c.instanceName, documentID), "tenant_id").Result()
	if err == redis.Nil {
		return "", redis.Nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document tenant: %w", err)
	}
	return tenant, nil
}

// ListDocumentIDs returns all document IDs, oldest first.
func (c *Client) ListDocumentIDs(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, DocumentsIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// GetFieldValues returns the live field values of a document keyed by definition ID.
func (c *Client) GetFieldValues(ctx context.Context, documentID string) (map[string]string, error) {
	return c.reader().fieldValues(ctx, documentID)
}

// GetRevision retrieves a revision, including its snapshot.
// Returns (nil, redis.Nil) if the revision doesn't exist.
func (c *Client) GetRevision(ctx context.Context, revisionID string) (*Revision, error) {
	return c.reader().revision(ctx, revisionID)
}

// CountRevisions returns the number of revisions recorded for a document.
func (c *Client) CountRevisions(ctx context.Context, documentID string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, DocumentRevisionsKey(c.instanceName, documentID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count revisions: %w", err)
	}
	return n, nil
}

// LatestSequence returns the highest revision sequence of a document, or 0 if it has none.
func (c *Client) LatestSequence(ctx context.Context, documentID string) (int, error) {
	return c.reader().latestSequence(ctx, documentID)
}

// ListRevisions returns revision summaries (without snapshots) newest first.
// offset and limit select a window of the sequence-descending list.
func (c *Client) ListRevisions(ctx context.Context, documentID string, offset, limit int) ([]*Revision, error) {
	if offset < 0 || limit < 1 || offset > math.MaxInt-limit {
		return nil, fmt.Errorf("invalid revision window: offset %d, limit %d", offset, limit)
	}
	key := DocumentRevisionsKey(c.instanceName, documentID)
	ids, err := c.rdb.ZRevRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revision index: %w", err)
	}
	if len(ids) == 0 {
		return []*Revision{}, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, RevisionKey(c.instanceName, id), revisionSummaryFields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read revisions: %w", err)
	}

	revisions := make([]*Revision, 0, len(ids))
	for i, cmd := range cmds {
		hash := make(map[string]string, len(revisionSummaryFields))
		for j, v := range cmd.Val() {
			if s, ok := v.(string); ok {
				hash[revisionSummaryFields[j]] = s
			}
		}
		rev, err := HashToRevision(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize revision %s: %w", ids[i], err)
		}
		revisions = append(revisions, rev)
	}
	return revisions, nil
}

// RevisionIDs returns every revision ID of a document, oldest first.
func (c *Client) RevisionIDs(ctx context.Context, documentID string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, DocumentRevisionsKey(c.instanceName, documentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read revision index: %w", err)
	}
	return ids, nil
}

// RevisionIDBySequence returns the ID of a document's revision with the given sequence.
// Returns ("", redis.Nil) if there is none.
func (c *Client) RevisionIDBySequence(ctx context.Context, documentID string, sequence int) (string, error) {
	score := strconv.Itoa(sequence)
	ids, err := c.rdb.ZRangeByScore(ctx, DocumentRevisionsKey(c.instanceName, documentID), &redis.ZRangeBy{
		Min: score, Max: score, Count: 1,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read revision index: %w", err)
	}
	if len(ids) == 0 {
		return "", redis.Nil
	}
	return ids[0], nil
}

// GetValueSet retrieves a value set by ID.
// Returns (nil, redis.Nil) if the value set doesn't exist.
func (c *Client) GetValueSet(ctx context.Context, valueSetID string) (*ValueSet, error) {
	return c.reader().valueSet(ctx, valueSetID)
}

// ListValueSets returns all value sets of a document ordered Requirement,
// Offered (by party), AsBuilt.
func (c *Client) ListValueSets(ctx context.Context, documentID string) ([]*ValueSet, error) {
	r := c.reader()
	slots, err := r.valueSetSlots(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sets := make([]*ValueSet, 0, len(slots))
	for _, id := range slots {
		vs, err := r.valueSet(ctx, id)
		if err != nil {
			return nil, err
		}
		sets = append(sets, vs)
	}
	SortValueSets(sets)
	return sets, nil
}

// GetValueSetValues returns the field values recorded in a value set.
func (c *Client) GetValueSetValues(ctx context.Context, valueSetID string) (map[string]string, error) {
	return c.reader().valueSetValues(ctx, valueSetID)
}

// GetVariances returns the variance overrides of a value set keyed by field definition ID.
func (c *Client) GetVariances(ctx context.Context, valueSetID string) (map[string]*VarianceOverride, error) {
	return c.reader().variances(ctx, valueSetID)
}

// GetRatingsBlock retrieves a ratings block by ID.
// Returns (nil, redis.Nil) if the block doesn't exist.
func (c *Client) GetRatingsBlock(ctx context.Context, blockID string) (*RatingsBlock, error) {
	return c.reader().ratingsBlock(ctx, blockID)
}

// ListRatingsBlocks returns the ratings blocks of a document ordered by creation time.
func (c *Client) ListRatingsBlocks(ctx context.Context, documentID string) ([]*RatingsBlock, error) {
	r := c.reader()
	ids, err := r.ratingsBlockIDs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	blocks := make([]*RatingsBlock, 0, len(ids))
	for _, id := range ids {
		b, err := r.ratingsBlock(ctx, id)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].CreatedAtMs < blocks[j].CreatedAtMs })
	return blocks, nil
}

// TemplateChildren returns the IDs of documents created from a template.
func (c *Client) TemplateChildren(ctx context.Context, templateID string) ([]string, error) {
	return c.reader().templateChildren(ctx, templateID)
}

// putSummaryScript writes a summary unless the stored one was built from a
// later document generation.
var putSummaryScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'generation') or '-1')
if current > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 1
`)

// PutSummary writes a document's derived summary projection. Summaries are
// rebuilt from authoritative data outside units of work, so a write built
// from an older Generation than the stored summary is skipped and reported
// as false.
func (c *Client) PutSummary(ctx context.Context, s *DocumentSummary) (bool, error) {
	hash := SummaryToHash(s)
	fields := make([]string, 0, len(hash))
	for field := range hash {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	args := make([]interface{}, 0, 1+2*len(fields))
	args = append(args, s.Generation)
	for _, field := range fields {
		args = append(args, field, hash[field])
	}

	written, err := putSummaryScript.Run(ctx, c.rdb, []string{SummaryKey(c.instanceName, s.DocumentID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write summary to Redis: %w", err)
	}
	return written == 1, nil
}

// DocumentGeneration returns the document's write counter, or 0 before the
// first committed unit of work.
func (c *Client) DocumentGeneration(ctx context.Context, documentID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, DocumentGenerationKey(c.instanceName, documentID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read document generation: %w", err)
	}
	return gen, nil
}

// GetSummary retrieves a document's summary projection.
// Returns (nil, redis.Nil) if it has not been built yet.
func (c *Client) GetSummary(ctx context.Context, documentID string) (*DocumentSummary, error) {
	hash, err := c.rdb.HGetAll(ctx, SummaryKey(c.instanceName, documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read summary from Redis: %w", err)
	}
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	return HashToSummary(hash), nil
}

// SortValueSets orders value sets Requirement, Offered (by party), AsBuilt.
func SortValueSets(sets []*ValueSet) {
	rank := map[ValueSetContext]int{ContextRequirement: 0, ContextOffered: 1, ContextAsBuilt: 2}
	sort.SliceStable(sets, func(i, j int) bool {
		if rank[sets[i].Context] != rank[sets[j].Context] {
			return rank[sets[i].Context] < rank[sets[j].Context]
		}
		return sets[i].PartyID < sets[j].PartyID
	})
}
