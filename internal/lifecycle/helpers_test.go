package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/lodge/internal/metrics"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	alice   = Scope{TenantID: "acme", ActorID: "alice"}
	bob     = Scope{TenantID: "acme", ActorID: "bob"}
	mallory = Scope{TenantID: "globex", ActorID: "mallory"}
)

type notification struct {
	recipients []string
	documentID string
	message    string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fails bool
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []string, documentID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fails {
		return errors.New("mailer unavailable")
	}
	n.sent = append(n.sent, notification{recipients: recipients, documentID: documentID, message: message})
	return nil
}

func (n *recordingNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type recordingRebuilder struct {
	mu       sync.Mutex
	enqueued []string
	kicks    int
}

func (r *recordingRebuilder) Enqueue(_ context.Context, documentIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, documentIDs...)
	return nil
}

func (r *recordingRebuilder) Kick(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kicks++
	return nil
}

func (r *recordingRebuilder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = nil
	r.kicks = 0
}

func (r *recordingRebuilder) documents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.enqueued...)
}

type fixture struct {
	engine    *Engine
	store     *datasheet.Client
	mr        *miniredis.Miniredis
	notifier  *recordingNotifier
	rebuilder *recordingRebuilder
	metrics   *metrics.Lifecycle
}

// setupEngine builds an engine over a fresh miniredis with recording hooks.
func setupEngine(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := datasheet.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:     store,
		mr:        mr,
		notifier:  &recordingNotifier{},
		rebuilder: &recordingRebuilder{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	base := []Option{
		WithNotifier(f.notifier),
		WithRebuilder(f.rebuilder),
		WithMetrics(f.metrics),
		WithTxPolicy(datasheet.TxPolicy{MaxAttempts: 200, InitialInterval: time.Millisecond, MaxInterval: 20 * time.Millisecond}),
	}
	f.engine = NewEngine(store, append(base, opts...)...)
	return f
}

func strPtr(s string) *string {
	return &s
}

func testHeader() datasheet.Header {
	return datasheet.Header{
		Name:       "Cooling water pump",
		Tag:        "P-101",
		ProjectID:  "proj-7",
		Discipline: "mechanical",
	}
}

func testLayout() []datasheet.Subsection {
	return []datasheet.Subsection{
		{
			ID:    "performance",
			Title: "Performance",
			Order: 1,
			Fields: []datasheet.FieldDefinition{
				{DefinitionID: "head", Label: "Head", Type: datasheet.FieldTypeNumber, Order: 1, UOM: "m"},
				{DefinitionID: "flow", Label: "Flow", Type: datasheet.FieldTypeNumber, Order: 0, UOM: "m3/h", Rule: "num(value) >= num(requirement)"},
			},
		},
		{
			ID:    "general",
			Title: "General",
			Order: 0,
			Fields: []datasheet.FieldDefinition{
				{DefinitionID: "seal", Label: "Seal type", Type: datasheet.FieldTypeEnum, Order: 0, Options: []string{"single", "double"}},
				{DefinitionID: "atex", Label: "ATEX rated", Type: datasheet.FieldTypeBoolean, Order: 1},
			},
		},
	}
}

func (f *fixture) createDocument(t *testing.T) *datasheet.Document {
	t.Helper()
	doc, err := f.engine.CreateDocument(context.Background(), alice, NewDocument{Header: testHeader(), Layout: testLayout()})
	require.NoError(t, err)
	return doc
}

func (f *fixture) edit(t *testing.T, scope Scope, documentID string, values map[string]*string) *Result {
	t.Helper()
	res, err := f.engine.UpdateDocument(context.Background(), scope, documentID, DocumentUpdate{Values: values})
	require.NoError(t, err)
	return res
}

func requireKind(t *testing.T, err error, kind datasheet.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, datasheet.KindOf(err), "unexpected error: %v", err)
}
