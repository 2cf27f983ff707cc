package lifecycle

import (
	"context"
	"fmt"
	"math"

	"github.com/dyluth/lodge/internal/logging"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RevisionPage is one page of a document's revision history, newest first.
type RevisionPage struct {
	Total     int64                 `json:"total"`
	Page      int                   `json:"page"`
	PageSize  int                   `json:"page_size"`
	Revisions []*datasheet.Revision `json:"revisions"`
}

// RevisionDetail is a revision with its decoded snapshot.
type RevisionDetail struct {
	Revision *datasheet.Revision `json:"revision"`
	Snapshot *datasheet.Snapshot `json:"snapshot"`
}

// createRevision snapshots doc and values and appends the next revision inside
// tx. The snapshot must pass validation; a failure aborts the unit of work.
func (e *Engine) createRevision(ctx context.Context, tx *datasheet.Tx, doc *datasheet.Document, values map[string]string, actor, comment string, restoredFrom *datasheet.Revision) (*datasheet.Revision, error) {
	payload, err := datasheet.EncodeSnapshot(doc, values)
	if err != nil {
		return nil, err
	}
	if _, err := datasheet.ValidateSnapshot(payload); err != nil {
		return nil, relabel("create revision", err)
	}

	seq, err := tx.NextSequence(ctx)
	if err != nil {
		return nil, err
	}

	rev := &datasheet.Revision{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		Sequence:    seq,
		Snapshot:    payload,
		CreatedBy:   actor,
		CreatedAtMs: e.nowMs(),
		Status:      doc.Status,
		Comment:     comment,
	}
	origin := "edit"
	if restoredFrom != nil {
		rev.RestoredFromID = restoredFrom.ID
		rev.RestoredFromSequence = restoredFrom.Sequence
		origin = "restore"
	}
	if err := tx.PutRevision(rev); err != nil {
		return nil, err
	}

	tx.AfterCommit(func(context.Context) {
		e.metrics.RevisionMinted(origin)
		e.event(logging.EventRevisionCreated).
			Str("document_id", rev.DocumentID).
			Str("revision_id", rev.ID).
			Int("sequence", rev.Sequence).
			Str("origin", origin).
			Str("actor", actor).
			Msg("revision created")
	})
	return rev, nil
}

// ListRevisions returns a page of revision summaries, newest first. page is
// 1-based; a pageSize of zero or less means DefaultPageSize and larger sizes
// are capped at the engine maximum. Pages past the end are empty.
func (e *Engine) ListRevisions(ctx context.Context, scope Scope, documentID string, page, pageSize int) (result *RevisionPage, err error) {
	const op = "list_revisions"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}

	page, pageSize = e.clampPage(page, pageSize)
	total, err := e.store.CountRevisions(ctx, documentID)
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	result = &RevisionPage{Total: total, Page: page, PageSize: pageSize, Revisions: []*datasheet.Revision{}}

	offset, ok := pageOffset(page, pageSize)
	if !ok || int64(offset) >= total {
		return result, nil
	}
	if result.Revisions, err = e.store.ListRevisions(ctx, documentID, offset, pageSize); err != nil {
		return nil, e.translate(op, documentID, err)
	}
	return result, nil
}

// pageOffset returns the index of the first entry on page, or false when
// that index does not fit in an int.
func pageOffset(page, pageSize int) (int, bool) {
	if page-1 > (math.MaxInt-pageSize)/pageSize {
		return 0, false
	}
	return (page - 1) * pageSize, true
}

func (e *Engine) clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > e.maxPageSize {
		pageSize = e.maxPageSize
	}
	return page, pageSize
}

// GetRevision returns one revision of a document with its decoded snapshot.
// A revision that belongs to another document is reported as not found; a
// stored snapshot that fails validation is reported as corrupt.
func (e *Engine) GetRevision(ctx context.Context, scope Scope, documentID, revisionID string) (detail *RevisionDetail, err error) {
	const op = "get_revision"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID), attribute.String("revision_id", revisionID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	rev, err := e.store.GetRevision(ctx, revisionID)
	if datasheet.IsNotFound(err) || (err == nil && rev.DocumentID != documentID) {
		return nil, datasheet.NewNotFoundError(op, "revision %s not found on document %s", revisionID, documentID)
	}
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	snap, err := decodeStoredSnapshot(op, rev)
	if err != nil {
		return nil, err
	}
	return &RevisionDetail{Revision: rev, Snapshot: snap}, nil
}

func decodeStoredSnapshot(op string, rev *datasheet.Revision) (*datasheet.Snapshot, error) {
	snap, err := datasheet.ValidateSnapshot(rev.Snapshot)
	if err != nil {
		return nil, datasheet.NewCorruptError(op, fmt.Sprintf("stored snapshot of revision #%d failed validation", rev.Sequence), err)
	}
	return snap, nil
}
