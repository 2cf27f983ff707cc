package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// putRevision appends a hand-built revision to a document's ledger.
func (f *fixture) putRevision(t *testing.T, documentID string, payload []byte) *datasheet.Revision {
	t.Helper()
	ctx := context.Background()
	var rev *datasheet.Revision
	err := f.store.Update(ctx, documentID, func(tx *datasheet.Tx) error {
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return err
		}
		rev = &datasheet.Revision{
			ID:          uuid.New().String(),
			DocumentID:  documentID,
			Sequence:    seq,
			Snapshot:    payload,
			CreatedBy:   "importer",
			CreatedAtMs: 1700000000000,
			Status:      datasheet.StatusModifiedDraft,
		}
		return tx.PutRevision(rev)
	})
	require.NoError(t, err)
	return rev
}

func TestConcurrentEditsProduceGaplessSequences(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := fmt.Sprintf("%d", 100+i)
			_, err := f.engine.UpdateDocument(ctx, alice, doc.ID, DocumentUpdate{Values: map[string]*string{"flow": &value}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	page, err := f.engine.ListRevisions(ctx, alice, doc.ID, 1, MaxPageSize)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), page.Total)
	require.Len(t, page.Revisions, writers)
	for i, rev := range page.Revisions {
		assert.Equal(t, writers-i, rev.Sequence, "revisions are newest first with no gaps")
	}
}

func TestListRevisions_Paging(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	for i := 0; i < 5; i++ {
		f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr(fmt.Sprintf("%d", i))})
	}

	page, err := f.engine.ListRevisions(ctx, alice, doc.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Revisions, 2)
	assert.Equal(t, 3, page.Revisions[0].Sequence)
	assert.Equal(t, 2, page.Revisions[1].Sequence)
	assert.Empty(t, page.Revisions[0].Snapshot, "listings carry no snapshot")

	page, err = f.engine.ListRevisions(ctx, alice, doc.ID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Revisions)

	for _, far := range []int{1 << 40, math.MaxInt} {
		page, err = f.engine.ListRevisions(ctx, alice, doc.ID, far, 2)
		require.NoError(t, err)
		assert.Empty(t, page.Revisions, "page %d is past the end", far)
		assert.Equal(t, int64(5), page.Total)
		assert.Equal(t, far, page.Page)
	}

	_, err = f.engine.ListRevisions(ctx, mallory, doc.ID, 1, 2)
	requireKind(t, err, datasheet.KindNotFound)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name             string
		max              int
		page, size       int
		wantPage, wantSz int
	}{
		{"defaults", MaxPageSize, 0, 0, 1, DefaultPageSize},
		{"negative page", MaxPageSize, -3, 10, 1, 10},
		{"negative size", MaxPageSize, 2, -5, 2, DefaultPageSize},
		{"above max", MaxPageSize, 1, 1000, 1, MaxPageSize},
		{"lowered max", 5, 1, 50, 1, 5},
		{"default above lowered max", 5, 1, 0, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupEngine(t, WithMaxPageSize(tt.max))
			page, size := f.engine.clampPage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSz, size)
		})
	}
}

func TestPageOffset(t *testing.T) {
	offset, ok := pageOffset(3, 20)
	assert.True(t, ok)
	assert.Equal(t, 40, offset)

	_, ok = pageOffset(math.MaxInt, 2)
	assert.False(t, ok)
	_, ok = pageOffset(math.MaxInt/100+2, 100)
	assert.False(t, ok)
}

func TestGetRevision(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	other := f.createDocument(t)

	res := f.edit(t, alice, doc.ID, map[string]*string{"flow": strPtr("120")})
	foreign := f.edit(t, alice, other.ID, map[string]*string{"flow": strPtr("80")})

	detail, err := f.engine.GetRevision(ctx, alice, doc.ID, res.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Revision.Sequence)
	assert.Equal(t, map[string]string{"flow": "120"}, detail.Snapshot.Values())
	assert.Equal(t, datasheet.StatusModifiedDraft, detail.Snapshot.Status)

	_, err = f.engine.GetRevision(ctx, alice, doc.ID, foreign.Revision.ID)
	requireKind(t, err, datasheet.KindNotFound)

	_, err = f.engine.GetRevision(ctx, alice, doc.ID, uuid.New().String())
	requireKind(t, err, datasheet.KindNotFound)
}

func TestGetRevision_CorruptSnapshot(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	doc := f.createDocument(t)
	rev := f.putRevision(t, doc.ID, []byte(`{"schema_version":2,"subsections":[]}`))

	_, err := f.engine.GetRevision(ctx, alice, doc.ID, rev.ID)
	requireKind(t, err, datasheet.KindCorrupt)
	assert.ErrorIs(t, err, datasheet.ErrCorrupt)
	assert.Contains(t, err.Error(), "revision #1")
}
