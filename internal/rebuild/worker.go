package rebuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/internal/metrics"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often an idle worker checks the queue without a kick.
const DefaultPollInterval = 5 * time.Second

// MinHeartbeatTTL is the shortest time a worker counts as alive after its
// last heartbeat. The TTL is at least three poll intervals.
const MinHeartbeatTTL = 30 * time.Second

// Worker drains the rebuild queue.
type Worker struct {
	store        *datasheet.Client
	rdb          *redis.Client
	instance     string
	id           string
	pollInterval time.Duration
	heartbeatTTL time.Duration
	logger       zerolog.Logger
	metrics      *metrics.Lifecycle
	now          func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets the worker's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics records rebuild outcomes on m.
func WithMetrics(m *metrics.Lifecycle) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkerID names the worker's claim list. IDs must be unique per
// running worker; the default is a random UUID.
func WithWorkerID(id string) Option {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

// WithHeartbeatTTL overrides how long the worker counts as alive after each
// heartbeat.
func WithHeartbeatTTL(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.heartbeatTTL = d
		}
	}
}

// WithClock overrides the time source used for RebuiltAtMs.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a worker reading and writing through store.
func NewWorker(store *datasheet.Client, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		rdb:          store.RedisClient(),
		instance:     store.InstanceName(),
		id:           uuid.New().String(),
		pollInterval: DefaultPollInterval,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.heartbeatTTL == 0 {
		w.heartbeatTTL = max(MinHeartbeatTTL, 3*w.pollInterval)
	}
	return w
}

// ID returns the worker's claim list identifier.
func (w *Worker) ID() string {
	return w.id
}

// heartbeat registers the worker and marks it alive for heartbeatTTL.
func (w *Worker) heartbeat(ctx context.Context) error {
	pipe := w.rdb.TxPipeline()
	pipe.SAdd(ctx, datasheet.RebuildWorkersKey(w.instance), w.id)
	pipe.Set(ctx, datasheet.RebuildHeartbeatKey(w.instance, w.id), w.now().UnixMilli(), w.heartbeatTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record rebuild worker heartbeat: %w", err)
	}
	return nil
}

// deregister drops the worker's heartbeat. An empty claim list is removed
// from the registry; a non-empty one is left for Recover.
func (w *Worker) deregister(ctx context.Context) {
	if err := w.rdb.Del(ctx, datasheet.RebuildHeartbeatKey(w.instance, w.id)).Err(); err != nil {
		w.logger.Warn().Err(err).Msg("failed to clear rebuild worker heartbeat")
		return
	}
	claimed, err := w.rdb.LLen(ctx, datasheet.RebuildProcessingKey(w.instance, w.id)).Result()
	if err != nil || claimed > 0 {
		return
	}
	if err := w.rdb.SRem(ctx, datasheet.RebuildWorkersKey(w.instance), w.id).Err(); err != nil {
		w.logger.Warn().Err(err).Msg("failed to deregister rebuild worker")
	}
}

// Run recovers rebuilds abandoned by dead workers, then drains the queue
// whenever it is kicked or the poll interval elapses. Every poll also
// refreshes the heartbeat and looks for newly dead workers. Blocks until ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.Recover(ctx); err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		w.deregister(cctx)
	}()

	pubsub := w.rdb.Subscribe(ctx, datasheet.RebuildKickChannel(w.instance))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to rebuild kicks: %w", err)
	}
	kicks := pubsub.Channel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info().Str("worker_id", w.id).Dur("poll_interval", w.pollInterval).Msg("rebuild worker started")
	for {
		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("rebuild drain failed")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("rebuild worker stopping")
			return nil
		case <-ticker.C:
			if _, err := w.Recover(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("rebuild recovery failed")
			}
		case _, ok := <-kicks:
			if !ok {
				return errors.New("rebuild kick subscription closed")
			}
		}
	}
}

// Recover moves rebuilds claimed by workers whose heartbeat has expired back
// onto the queue and forgets those workers. Live workers, including this
// one, keep their claims. It returns how many rebuilds were moved.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	startTime := w.now()
	if err := w.heartbeat(ctx); err != nil {
		return 0, err
	}

	workers, err := w.rdb.SMembers(ctx, datasheet.RebuildWorkersKey(w.instance)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list rebuild workers: %w", err)
	}

	queue := datasheet.RebuildQueueKey(w.instance)
	recovered := 0
	for _, id := range workers {
		if id == w.id {
			continue
		}
		alive, err := w.rdb.Exists(ctx, datasheet.RebuildHeartbeatKey(w.instance, id)).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to check rebuild worker %s: %w", id, err)
		}
		if alive > 0 {
			continue
		}

		processing := datasheet.RebuildProcessingKey(w.instance, id)
		for {
			err := w.rdb.LMove(ctx, processing, queue, "LEFT", "RIGHT").Err()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return recovered, fmt.Errorf("failed to recover rebuilds of worker %s: %w", id, err)
			}
			recovered++
		}
		if err := w.rdb.SRem(ctx, datasheet.RebuildWorkersKey(w.instance), id).Err(); err != nil {
			return recovered, fmt.Errorf("failed to forget rebuild worker %s: %w", id, err)
		}
	}

	if recovered > 0 {
		logging.Event(w.logger, logging.EventRebuildRecovered).
			Int("recovered", recovered).
			Dur("duration", w.now().Sub(startTime)).
			Msg("recovered abandoned rebuilds")
	}
	return recovered, nil
}

// Drain processes queued rebuilds until the queue is empty or ctx is done.
// Claims go to this worker's own processing list. A failed rebuild is logged
// and dropped; the next write to the document queues it again.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	queue := datasheet.RebuildQueueKey(w.instance)
	processing := datasheet.RebuildProcessingKey(w.instance, w.id)
	pending := datasheet.RebuildPendingKey(w.instance)

	done := 0
	for ctx.Err() == nil {
		if err := w.heartbeat(ctx); err != nil {
			return done, err
		}
		documentID, err := w.rdb.LMove(ctx, queue, processing, "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return done, nil
		}
		if err != nil {
			return done, fmt.Errorf("failed to claim rebuild: %w", err)
		}
		// Released before the rebuild so writes during it queue another pass.
		if err := w.rdb.SRem(ctx, pending, documentID).Err(); err != nil {
			return done, fmt.Errorf("failed to release pending rebuild: %w", err)
		}

		if _, err := w.Rebuild(ctx, documentID); err != nil {
			w.metrics.Rebuild("error")
			w.logger.Error().Err(err).Str("document_id", documentID).Msg("rebuild failed")
		} else {
			done++
		}

		if err := w.rdb.LRem(ctx, processing, 1, documentID).Err(); err != nil {
			return done, fmt.Errorf("failed to finish rebuild: %w", err)
		}
	}
	return done, nil
}

// Rebuild recomputes and stores the summary of one document. The document's
// generation is read before anything else, so a concurrent rebuild that saw
// later writes is never overwritten. A document that no longer exists, or
// whose stored summary is already newer, is skipped and returns (nil, nil).
func (w *Worker) Rebuild(ctx context.Context, documentID string) (*datasheet.DocumentSummary, error) {
	generation, err := w.store.DocumentGeneration(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc, err := w.store.GetDocument(ctx, documentID)
	if datasheet.IsNotFound(err) {
		w.logger.Debug().Str("document_id", documentID).Msg("skipping rebuild of missing document")
		w.metrics.Rebuild("missing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	revisions, err := w.store.CountRevisions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	latest, err := w.store.LatestSequence(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sets, err := w.store.ListValueSets(ctx, documentID)
	if err != nil {
		return nil, err
	}

	summary := &datasheet.DocumentSummary{
		DocumentID:     doc.ID,
		TenantID:       doc.TenantID,
		Name:           doc.Header.Name,
		Tag:            doc.Header.Tag,
		Status:         doc.Status,
		IsTemplate:     doc.IsTemplate,
		RevisionCount:  int(revisions),
		LatestSequence: latest,
		ValueSetCount:  len(sets),
		RebuiltAtMs:    w.now().UnixMilli(),
		Generation:     generation,
	}
	if doc.ParentDocumentID != "" {
		parent, err := w.store.GetDocument(ctx, doc.ParentDocumentID)
		switch {
		case err == nil:
			summary.TemplateName = parent.Header.Name
		case !datasheet.IsNotFound(err):
			return nil, err
		}
	}

	written, err := w.store.PutSummary(ctx, summary)
	if err != nil {
		return nil, err
	}
	if !written {
		w.logger.Debug().Str("document_id", documentID).Int64("generation", generation).Msg("skipping stale summary")
		w.metrics.Rebuild("stale")
		return nil, nil
	}
	w.metrics.Rebuild("ok")
	logging.Event(w.logger, logging.EventRebuildCompleted).
		Str("document_id", documentID).
		Int("revision_count", summary.RevisionCount).
		Msg("summary rebuilt")
	return summary, nil
}
