// Package lifecycle implements the datasheet lifecycle engine: the document
// status machine, the revision ledger, value sets and variances, restore and
// ratings locking. Every mutation runs as one per-document unit of work on the
// datasheet store; notifications and projection rebuilds are fired after commit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/internal/metrics"
	"github.com/dyluth/lodge/internal/tenant"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPageSize is used when a revision listing asks for no page size.
	DefaultPageSize = 20

	// MaxPageSize is the largest revision page a caller can request.
	MaxPageSize = 100
)

// Scope identifies who is calling and on behalf of which tenant.
type Scope struct {
	TenantID string
	ActorID  string
}

// TenantGate decides whether a document belongs to a tenant.
type TenantGate interface {
	BelongsToTenant(ctx context.Context, documentID, tenantID string) (bool, error)
}

// Engine coordinates all lifecycle operations on top of a datasheet store.
type Engine struct {
	store       *datasheet.Client
	tenants     TenantGate
	notifier    Notifier
	rebuilder   Rebuilder
	metrics     *metrics.Lifecycle
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	maxPageSize int
	txPolicy    datasheet.TxPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithTenantGate replaces the default document-hash tenant gate.
func WithTenantGate(g TenantGate) Option {
	return func(e *Engine) { e.tenants = g }
}

// WithNotifier sets the post-commit notification sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithRebuilder sets the post-commit projection rebuild queue.
func WithRebuilder(r Rebuilder) Option {
	return func(e *Engine) { e.rebuilder = r }
}

// WithMetrics sets the Prometheus instruments. Nil disables metrics.
func WithMetrics(m *metrics.Lifecycle) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTxPolicy sets the retry budget for units of work that lose a race.
func WithTxPolicy(p datasheet.TxPolicy) Option {
	return func(e *Engine) { e.txPolicy = p }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxPageSize lowers the revision page size ceiling (never above MaxPageSize).
func WithMaxPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 && n < MaxPageSize {
			e.maxPageSize = n
		}
	}
}

// NewEngine creates a lifecycle engine over store. Without options it gates
// tenants on the document's tenant_id, drops notifications and rebuilds, and
// logs nothing.
func NewEngine(store *datasheet.Client, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		tenants:     tenant.NewRedisGate(store),
		notifier:    nopNotifier{},
		rebuilder:   nopRebuilder{},
		logger:      zerolog.Nop(),
		tracer:      otel.Tracer("github.com/dyluth/lodge/internal/lifecycle"),
		now:         time.Now,
		maxPageSize: MaxPageSize,
		txPolicy:    datasheet.DefaultTxPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	policy := e.txPolicy
	next := policy.OnRetry
	policy.OnRetry = func(documentID string, attempt int) {
		e.metrics.TxRetry()
		if next != nil {
			next(documentID, attempt)
		}
	}
	store.SetTxPolicy(policy)
	store.SetLogger(e.logger)
	return e
}

// Store exposes the underlying datasheet client for read-only callers.
func (e *Engine) Store() *datasheet.Client {
	return e.store
}

func (e *Engine) nowMs() int64 {
	return e.now().UnixMilli()
}

// begin starts a span for an engine operation and returns a finish function
// that records the outcome in tracing and metrics.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	start := e.now()
	return ctx, func(errp *error) {
		outcome := "ok"
		if errp != nil && *errp != nil {
			outcome = string(datasheet.KindOf(*errp))
			span.RecordError(*errp)
			span.SetStatus(codes.Error, outcome)
		}
		e.metrics.ObserveOperation(op, outcome, e.now().Sub(start).Seconds())
		span.End()
	}
}

// authorize checks the caller's identity and that the document belongs to the
// caller's tenant. A document in another tenant is reported as not found.
func (e *Engine) authorize(ctx context.Context, op string, scope Scope, documentID string) error {
	if err := scope.check(op); err != nil {
		return err
	}
	ok, err := e.visible(ctx, op, scope, documentID)
	if err != nil {
		return err
	}
	if !ok {
		return datasheet.NewNotFoundError(op, "document %s not found", documentID)
	}
	return nil
}

// visible asks the tenant gate whether scope may see documentID.
func (e *Engine) visible(ctx context.Context, op string, scope Scope, documentID string) (bool, error) {
	ok, err := e.tenants.BelongsToTenant(ctx, documentID, scope.TenantID)
	if err != nil {
		return false, datasheet.NewInternalError(op, fmt.Errorf("failed to check tenant: %w", err))
	}
	return ok, nil
}

func (s Scope) check(op string) error {
	if s.ActorID == "" {
		return datasheet.NewUnauthorizedError(op, "an authenticated actor is required")
	}
	if s.TenantID == "" {
		return datasheet.NewUnauthorizedError(op, "a tenant scope is required")
	}
	return nil
}

// inDocument runs fn as one unit of work on documentID and translates storage
// errors into the lifecycle error taxonomy.
func (e *Engine) inDocument(ctx context.Context, op, documentID string, fn func(tx *datasheet.Tx) error) error {
	return e.translate(op, documentID, e.store.Update(ctx, documentID, fn))
}

func (e *Engine) translate(op, documentID string, err error) error {
	if err == nil {
		return nil
	}
	var typed *datasheet.Error
	if errors.As(err, &typed) {
		if typed.Op == "" {
			typed.Op = op
		}
		return typed
	}
	if errors.Is(err, redis.Nil) {
		return datasheet.NewNotFoundError(op, "document %s not found", documentID)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.logger.Error().Err(err).Str("operation", op).Str("document_id", documentID).Msg("storage failure")
	return datasheet.NewInternalError(op, err)
}

// loadDocument reads the scoped document inside tx, mapping absence to NotFound.
func loadDocument(ctx context.Context, op string, tx *datasheet.Tx) (*datasheet.Document, error) {
	doc, err := tx.Document(ctx)
	if errors.Is(err, redis.Nil) {
		return nil, datasheet.NewNotFoundError(op, "document %s not found", tx.DocumentID())
	}
	return doc, err
}

func (e *Engine) event(eventType string) *zerolog.Event {
	return logging.Event(e.logger, eventType)
}
