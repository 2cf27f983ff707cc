package lifecycle

import (
	"context"

	"github.com/dyluth/lodge/pkg/datasheet"
	"go.opentelemetry.io/otel/attribute"
)

// GetSummary returns the derived summary of a document. A document whose
// summary has not been rebuilt yet is reported as not found.
func (e *Engine) GetSummary(ctx context.Context, scope Scope, documentID string) (summary *datasheet.DocumentSummary, err error) {
	const op = "get_summary"
	ctx, finish := e.begin(ctx, op, attribute.String("document_id", documentID))
	defer finish(&err)

	if err := e.authorize(ctx, op, scope, documentID); err != nil {
		return nil, err
	}
	summary, err = e.store.GetSummary(ctx, documentID)
	if datasheet.IsNotFound(err) {
		return nil, datasheet.NewNotFoundError(op, "summary of document %s has not been built yet", documentID)
	}
	if err != nil {
		return nil, e.translate(op, documentID, err)
	}
	return summary, nil
}

// ListSummaries returns the built summaries of every document the tenant gate
// lets the caller see, oldest document first. Documents without a summary are
// skipped.
func (e *Engine) ListSummaries(ctx context.Context, scope Scope) (summaries []*datasheet.DocumentSummary, err error) {
	const op = "list_summaries"
	ctx, finish := e.begin(ctx, op)
	defer finish(&err)

	if err := scope.check(op); err != nil {
		return nil, err
	}
	ids, err := e.store.ListDocumentIDs(ctx)
	if err != nil {
		return nil, e.translate(op, "", err)
	}
	summaries = make([]*datasheet.DocumentSummary, 0, len(ids))
	for _, id := range ids {
		ok, err := e.visible(ctx, op, scope, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		s, err := e.store.GetSummary(ctx, id)
		if datasheet.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, e.translate(op, id, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
