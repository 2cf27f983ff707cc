package lifecycle

import (
	"context"
	"testing"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleScenario(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	doc := f.createDocument(t)
	first := f.edit(t, bob, doc.ID, map[string]*string{"flow": strPtr("120"), "head": strPtr("30")})
	second := f.edit(t, bob, doc.ID, map[string]*string{"flow": strPtr("150"), "seal": strPtr("double")})
	assert.Equal(t, 1, first.Revision.Sequence)
	assert.Equal(t, 2, second.Revision.Sequence)

	_, err := f.engine.Verify(ctx, alice, doc.ID)
	require.NoError(t, err)
	_, err = f.engine.Approve(ctx, alice, doc.ID)
	require.NoError(t, err)

	res, err := f.engine.Restore(ctx, alice, doc.ID, first.Revision.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Revision.Sequence, "restore mints exactly one newer revision")
	assert.Equal(t, first.Revision.ID, res.Revision.RestoredFromID)
	assert.Equal(t, 1, res.Revision.RestoredFromSequence)
	assert.Equal(t, "restored from revision #1", res.Revision.Comment)
	assert.Equal(t, datasheet.StatusModifiedDraft, res.Document.Status)
	assert.Equal(t, map[string]string{"flow": "120", "head": "30"}, res.Values)

	state, err := f.engine.GetDocument(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Values, state.Values)
	assert.Equal(t, 3, state.LatestSequence)
	assert.Equal(t, datasheet.StatusModifiedDraft, state.Document.Status)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RevisionsTotal.WithLabelValues("restore")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TransitionsTotal.WithLabelValues("Approved", "ModifiedDraft")))

	// The document is editable again.
	next := f.edit(t, bob, doc.ID, map[string]*string{"flow": strPtr("130")})
	assert.Equal(t, 4, next.Revision.Sequence)
}

func TestRestore_CustomComment(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	first := f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("120")})
	f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("10")})

	res, err := f.engine.Restore(ctx, alice, doc.ID, first.Revision.ID, "typo in flow")
	require.NoError(t, err)
	assert.Equal(t, "typo in flow", res.Revision.Comment)
}

func TestRestore_ClearsRejection(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	first := f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("120")})

	_, err := f.engine.Reject(ctx, bob, doc.ID, "wrong pump")
	require.NoError(t, err)

	res, err := f.engine.Restore(ctx, alice, doc.ID, first.Revision.ID, "")
	require.NoError(t, err)
	assert.Equal(t, datasheet.StatusModifiedDraft, res.Document.Status)
	assert.Empty(t, res.Document.RejectionComment)
	assert.Empty(t, res.Document.RejectedBy)
}

func TestRestore_RewritesHeaderAndStatus(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("120")})

	tests := []struct {
		name       string
		status     datasheet.DocumentStatus
		wantStatus datasheet.DocumentStatus
	}{
		{"draft snapshot stays draft", datasheet.StatusDraft, datasheet.StatusDraft},
		{"approved snapshot reopens", datasheet.StatusApproved, datasheet.StatusModifiedDraft},
		{"verified snapshot reopens", datasheet.StatusVerified, datasheet.StatusModifiedDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imported := *doc
			imported.Status = tt.status
			imported.Header.Name = "Imported " + string(tt.status)
			payload, err := datasheet.EncodeSnapshot(&imported, map[string]string{"head": "42"})
			require.NoError(t, err)
			rev := f.putRevision(t, doc.ID, payload)

			res, err := f.engine.Restore(ctx, alice, doc.ID, rev.ID, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Document.Status)
			assert.Equal(t, "Imported "+string(tt.status), res.Document.Header.Name)
			assert.Equal(t, map[string]string{"head": "42"}, res.Values)
			assert.Equal(t, rev.Sequence+1, res.Revision.Sequence)
		})
	}
}

func TestRestore_Failures(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	other := f.createDocument(t)
	f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("120")})
	foreign := f.edit(t, alice, other.ID, map[string]*string{"flow": strPtr("80")})
	corrupt := f.putRevision(t, doc.ID, []byte(`not json`))

	_, err := f.engine.Restore(ctx, alice, doc.ID, foreign.Revision.ID, "")
	requireKind(t, err, datasheet.KindNotFound)

	_, err = f.engine.Restore(ctx, alice, doc.ID, "missing", "")
	requireKind(t, err, datasheet.KindNotFound)

	_, err = f.engine.Restore(ctx, alice, doc.ID, corrupt.ID, "")
	requireKind(t, err, datasheet.KindCorrupt)

	_, err = f.engine.Restore(ctx, mallory, doc.ID, corrupt.ID, "")
	requireKind(t, err, datasheet.KindNotFound)

	state, err := f.engine.GetDocument(ctx, alice, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, state.LatestSequence, "failed restores mint nothing")
	assert.Equal(t, map[string]string{"flow": "120"}, state.Values)
}
